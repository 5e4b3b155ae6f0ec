package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-tabletop/core/voice"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// goWorker runs a background worker and logs how it ended.
func goWorker(ctx context.Context, name string, run func(context.Context) error) {
	worker := panicSafeNamedWorker(name, run)
	go func() {
		if err := worker(ctx); err != nil && !isTeardown(err) {
			logger.Error("background worker stopped", "worker", name, "error", err)
		}
	}()
}

// isTeardown reports whether err only says that the user or the
// orchestrator cancelled the work. Such errors never become notices.
func isTeardown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, voice.ErrSuperseded)
}
