package service

import "time"

// Clock 时间源抽象，测试注入假时钟
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
