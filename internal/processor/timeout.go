package processor

import (
	"context"
	"fmt"
	"time"
)

type timeoutProcessor struct {
	inner Processor
	limit time.Duration
}

type outcome struct {
	result Result
	err    error
}

// WithTimeout bounds p to limit per invocation. When the limit passes the
// call returns context.DeadlineExceeded even if p ignores its context; p keeps
// running in the background until it returns. A non-positive limit returns p
// unchanged.
func WithTimeout(p Processor, limit time.Duration) Processor {
	if limit <= 0 {
		return p
	}
	return &timeoutProcessor{inner: p, limit: limit}
}

func (t *timeoutProcessor) Process(ctx context.Context, inputs []string, outDir string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		// Panics on this goroutine cannot reach the caller's recover.
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("processor panic: %v", r)}
			}
		}()
		res, err := t.inner.Process(ctx, inputs, outDir)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
