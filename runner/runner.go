package runner

import (
	"context"
	"log"
	"time"
)

// Runner calls Process every interval until its context is done.
type Runner struct {
	Name    string
	Process func(ctx context.Context) error
	Every   time.Duration
}

func NewRunner(name string, process func(ctx context.Context) error, interval time.Duration) *Runner {
	return &Runner{
		Name:    name,
		Process: process,
		Every:   interval,
	}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Process(ctx); err != nil {
				log.Printf("%s process error: %v", r.Name, err)
			}
		}
	}
}
