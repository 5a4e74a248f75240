package store

import (
	"encoding/json"

	"vectorAdmin/internal/console/storage"
)

// themeSettings 持久化格式，与 theme_settings 键中的 JSON 一致。
type themeSettings struct {
	Mode           ThemeMode      `json:"mode"`
	Color          string         `json:"color"`
	FontSize       int            `json:"fontSize"`
	PageTransition PageTransition `json:"pageTransition"`
}

func settingsOf(s AppState) themeSettings {
	return themeSettings{
		Mode:           s.ThemeMode,
		Color:          s.PrimaryColor,
		FontSize:       s.FontSize,
		PageTransition: s.PageTransition,
	}
}

// LoadSettings 从存储读取主题设置并合并到 state；JSON 损坏时原样返回。
func LoadSettings(st storage.Storage, state AppState) AppState {
	raw, ok := st.Get(storage.KeyTheme)
	if !ok {
		return state
	}
	var saved themeSettings
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return state
	}
	if saved.Mode != "" {
		state.ThemeMode = saved.Mode
	}
	if saved.Color != "" {
		state.PrimaryColor = saved.Color
	}
	if saved.FontSize > 0 {
		state.FontSize = saved.FontSize
	}
	if saved.PageTransition != "" {
		state.PageTransition = saved.PageTransition
	}
	return state
}

// PersistSettings 在主题相关字段变化时写回存储。
func PersistSettings(st storage.Storage) Observer {
	return func(prev, next AppState, _ Action) {
		if settingsOf(prev) == settingsOf(next) {
			return
		}
		raw, err := json.Marshal(settingsOf(next))
		if err != nil {
			return
		}
		_ = st.Set(storage.KeyTheme, string(raw))
	}
}

// ThemeApplier 负责把主题落到具体的界面上。
type ThemeApplier interface {
	ApplyDark(dark bool)
	ApplyPrimaryColor(color string)
	ApplyFontSize(px int)
}

// OSColorScheme 返回系统是否处于深色模式。
type OSColorScheme func() bool

// EffectiveDark 计算实际生效的深浅色。
func EffectiveDark(mode ThemeMode, osDark OSColorScheme) bool {
	if mode == ThemeSystem {
		return osDark != nil && osDark()
	}
	return mode == ThemeDark
}

// ApplyTheme 只在相关字段变化时调用 applier。
func ApplyTheme(applier ThemeApplier, osDark OSColorScheme) Observer {
	return func(prev, next AppState, _ Action) {
		if prev.ThemeMode != next.ThemeMode {
			applier.ApplyDark(EffectiveDark(next.ThemeMode, osDark))
		}
		if prev.PrimaryColor != next.PrimaryColor {
			applier.ApplyPrimaryColor(next.PrimaryColor)
		}
		if prev.FontSize != next.FontSize {
			applier.ApplyFontSize(next.FontSize)
		}
	}
}

// ApplyAll 启动时完整应用一次。
func ApplyAll(applier ThemeApplier, osDark OSColorScheme, state AppState) {
	applier.ApplyDark(EffectiveDark(state.ThemeMode, osDark))
	applier.ApplyPrimaryColor(state.PrimaryColor)
	applier.ApplyFontSize(state.FontSize)
}
