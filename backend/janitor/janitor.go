package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultSweepInterval = time.Minute
	defaultRetention     = 10 * time.Minute
)

type Store interface {
	DeleteInactive(ctx context.Context, cutoff time.Time) (int, error)
}

// Janitor periodically deletes parties that have no participants and have
// been inactive for longer than the retention period.
type Janitor struct {
	logger    zerolog.Logger
	store     Store
	interval  time.Duration
	retention time.Duration
}

type Config struct {
	Logger        *zerolog.Logger
	Store         Store
	SweepInterval time.Duration
	Retention     time.Duration
}

func New(cfg Config) *Janitor {
	j := &Janitor{
		logger:    cfg.Logger.With().Str("component", "janitor").Logger(),
		store:     cfg.Store,
		interval:  cfg.SweepInterval,
		retention: cfg.Retention,
	}
	if j.interval <= 0 {
		j.interval = defaultSweepInterval
	}
	if j.retention <= 0 {
		j.retention = defaultRetention
	}
	return j
}

func (j *Janitor) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		j.logger.Debug().Msg("janitor stopped")
		wg.Done()
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().
		Dur("interval", j.interval).
		Dur("retention", j.retention).
		Msg("janitor started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.store.DeleteInactive(ctx, time.Now().Add(-j.retention))
			if err != nil {
				j.logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				j.logger.Info().Int("deleted", n).Msg("inactive parties deleted")
			}
		}
	}
}
