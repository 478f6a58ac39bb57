package scheduler

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"larder/utils"
)

// Start schedules pull-then-push rounds according to REFRESH_CRON and
// kicks one round off immediately in the background.
func Start(as *utils.AppState) {
	round := func() {
		ctx := context.Background()
		from, to := as.Config.RefreshWindow(time.Now())
		Refresh(ctx, as, from, to)
		Push(ctx, as)
	}

	c := cron.New()
	if _, err := c.AddFunc(as.Config.GetRefreshCron(), round); err != nil {
		slog.Error("Start: invalid refresh cron", "cron", as.Config.GetRefreshCron(), "error", err)
		os.Exit(1)
	}
	c.Start()
	go round()

	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		<-*gracefulShutdownCh
		c.Stop()
	}()
}
