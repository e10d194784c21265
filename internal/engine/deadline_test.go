package engine

import (
	"testing"
	"time"
)

// deadline 提供轮询式等待，避免测试依赖固定 sleep。
type deadline struct {
	t     *testing.T
	until time.Time
}

func newDeadline(t *testing.T) *deadline {
	t.Helper()
	return &deadline{t: t, until: time.Now().Add(5 * time.Second)}
}

func (d *deadline) tick() {
	d.t.Helper()
	if time.Now().After(d.until) {
		d.t.Fatalf("条件未在期望时间内满足")
	}
	time.Sleep(10 * time.Millisecond)
}
