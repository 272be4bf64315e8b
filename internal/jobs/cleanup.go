package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Expirer drops entries whose lifetime has passed and reports how many
// were removed.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type Target struct {
	Name    string
	Expirer Expirer
}

type CleanupJob struct {
	targets  []Target
	interval time.Duration
	done     chan struct{}
}

// NewCleanupJob sweeps the targets every interval. Targets with a nil
// Expirer are skipped so callers can pass optional stores unconditionally.
func NewCleanupJob(interval time.Duration, targets ...Target) *CleanupJob {
	active := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Expirer != nil {
			active = append(active, t)
		}
	}

	return &CleanupJob{
		targets:  active,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Len() int {
	return len(j.targets)
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Int("targets", len(j.targets)).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, t := range j.targets {
		j.runCleanup(ctx, t.Name, t.Expirer.DeleteExpired)
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
