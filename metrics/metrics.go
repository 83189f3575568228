package metrics

import "time"

type TaskMetrics interface {
	StoreOp(op string, d time.Duration, err error)
	Authorization(accepted bool, reason string)
	KeyRefresh(err error)
	EventPublished(err error)
}

type Nop struct{}

func (Nop) StoreOp(string, time.Duration, error) {}
func (Nop) Authorization(bool, string)           {}
func (Nop) KeyRefresh(error)                     {}
func (Nop) EventPublished(error)                 {}
