package wizard

import "time"

// Clock 提供计时通道，测试中可替换为手动驱动的实现。
type Clock interface {
	Ticker(d time.Duration) (<-chan time.Time, func())
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
