package tagfsserver

import (
	"context"
	"log"

	"github.com/function61/gokit/logex"
	"github.com/robfig/cron/v3"
)

// runs the integrity scan on a cron schedule until ctx is cancelled. for use with taskrunner.
func integrityScanTask(node *Node, schedule string, logger *log.Logger) func(context.Context) error {
	logl := logex.Levels(logger)

	return func(ctx context.Context) error {
		scheduler := cron.New(cron.WithLogger(cron.PrintfLogger(logger)))

		if _, err := scheduler.AddFunc(schedule, func() {
			if _, err := node.VerifyIntegrity(ctx); err != nil {
				logl.Error.Printf("integrity scan: %v", err)
			}
		}); err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		// waits for a running scan to finish. the scan observes ctx, so it won't be long
		<-scheduler.Stop().Done()

		return nil
	}
}
