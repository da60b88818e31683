package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"plantmart/internal/flagstore"
	"plantmart/pkg/logx"
)

// janitor prunes flag records older than the retention window on a cron
// schedule. Flags are last-write-wins markers; one nobody consumed for a
// month is noise, not state worth keeping.
type janitor struct {
	flags *flagstore.Flags
	log   logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func newJanitor(flags *flagstore.Flags, log logx.Logger) *janitor {
	return &janitor{flags: flags, log: log}
}

func (j *janitor) start(schedule string, retention time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c != nil {
		j.c.Stop()
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cutoff := time.Now().Add(-retention)
		n := j.flags.PruneOlderThan(ctx, cutoff)
		if n > 0 {
			j.log.Info("pruned stale flags", logx.Int("count", n), logx.Time("cutoff", cutoff))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	j.c = c
	j.log.Debug("janitor scheduled", logx.String("schedule", schedule), logx.Duration("retention", retention))
	return nil
}

func (j *janitor) stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c != nil {
		j.c.Stop()
		j.c = nil
	}
}
