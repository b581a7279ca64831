// Package sweep expires stale pending checkout intents on a schedule. It runs
// as a river periodic job so abandoned checkouts don't linger as pending
// forever.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

type ExpireIntentsArgs struct{}

func (ExpireIntentsArgs) Kind() string { return "expire_checkout_intents" }

// IntentSweeper is the registry operation the worker needs.
type IntentSweeper interface {
	SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error)
}

type ExpireIntentsWorker struct {
	river.WorkerDefaults[ExpireIntentsArgs]
	intents IntentSweeper
	maxAge  time.Duration
	log     *slog.Logger
}

func NewExpireIntentsWorker(intents IntentSweeper, maxAge time.Duration, log *slog.Logger) *ExpireIntentsWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpireIntentsWorker{intents: intents, maxAge: maxAge, log: log}
}

func (w *ExpireIntentsWorker) Work(ctx context.Context, job *river.Job[ExpireIntentsArgs]) error {
	n, err := w.intents.SweepExpired(ctx, w.maxAge)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("expired stale checkout intents", "count", n, "max_age", w.maxAge)
	}
	return nil
}
