package app

import (
	"context"
	"errors"
	"time"

	"family_chat_service/pkg/logger"
)

// Redialer gives chat clients a bounded automatic reconnection budget.
// A dropped connection is retried RetryCount more times with
// RetryInterval between attempts; once exhausted the client surfaces
// the failure instead of retrying forever.
type Redialer struct {
	RetryCount    int
	RetryInterval time.Duration
}

// Connect runs dial until one attempt succeeds. The context cancels the
// wait between attempts, returning ctx.Err. After the budget is spent
// the last dial error is returned.
func (r Redialer) Connect(ctx context.Context, dial func(ctx context.Context) error) error {
	var err error
	for i := 0; i <= r.RetryCount; i++ {
		if err = dial(ctx); err == nil {
			return nil
		}
		logger.Log.Errorf("chat dial failed:", err)

		if i < r.RetryCount {
			select {
			case <-time.After(r.RetryInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return errors.New("failed to connect to chat after retries: " + err.Error())
}
