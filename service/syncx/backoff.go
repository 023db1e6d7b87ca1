package syncx

import (
	"math/rand"
	"time"
)

// Backoff 指数退避 + 抖动。重连次数不设上限——会话视图还活着就一直重试，
// 退避只决定两次尝试的间隔。非并发安全，只归工作协程使用。
type Backoff struct {
	Min time.Duration // 起始间隔
	Max time.Duration // 封顶间隔

	// Rand 可注入随机源（单测用）；nil => rand.Int63n
	Rand func(n int64) int64

	attempt int
}

func (b *Backoff) norm() {
	if b.Min <= 0 {
		b.Min = 500 * time.Millisecond
	}
	if b.Max < b.Min {
		b.Max = 30 * time.Second
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
}

// Next 返回下一次等待时长：min(Min*2^n, Max) 再加 [0, d/2) 的均匀抖动。
func (b *Backoff) Next() time.Duration {
	b.norm()

	d := b.Min
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	b.attempt++

	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Int63n
	}
	return d + time.Duration(rnd(half))
}

// Reset 连接成功后清零，下次故障从 Min 重新爬坡。
func (b *Backoff) Reset() {
	b.attempt = 0
}
