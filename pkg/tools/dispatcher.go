package tools

import (
	"context"
	"log"
)

// JobFunc defines a function executed asynchronously.
type JobFunc func(ctx context.Context) error

// Dispatch runs the job in a separate goroutine, fire-and-forget. Failures
// are logged; callers that need the outcome track it through the task
// manager.
func Dispatch(ctx context.Context, name string, fn JobFunc) {
	go func() {
		if err := fn(ctx); err != nil {
			log.Printf("[%s] background job failed: %v", name, err)
		}
	}()
}
