package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// terminalTheme 把主题设置映射到终端：深浅色决定默认前景，主色用于提示符。
// 终端无法调整字号，只记录下来。
type terminalTheme struct {
	mu       sync.Mutex
	out      io.Writer
	dark     bool
	rgb      [3]int
	hasColor bool
	fontSize int
}

func newTerminalTheme(out io.Writer) *terminalTheme {
	return &terminalTheme{out: out}
}

func (t *terminalTheme) ApplyDark(dark bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dark = dark
}

func (t *terminalTheme) ApplyPrimaryColor(color string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rgb, t.hasColor = parseHex(color)
}

func (t *terminalTheme) ApplyFontSize(px int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fontSize = px
}

// accent 以主色渲染文本。
func (t *terminalTheme) accent(s string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasColor {
		return s
	}
	bold := ""
	if t.dark {
		bold = "1;"
	}
	return fmt.Sprintf("\x1b[%s38;2;%d;%d;%dm%s\x1b[0m", bold, t.rgb[0], t.rgb[1], t.rgb[2], s)
}

// parseHex 解析 #rrggbb 或 #rgb。
func parseHex(color string) ([3]int, bool) {
	hex := strings.TrimPrefix(strings.TrimSpace(color), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return [3]int{}, false
	}
	var rgb [3]int
	for i := range rgb {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return [3]int{}, false
		}
		rgb[i] = int(v)
	}
	return rgb, true
}
