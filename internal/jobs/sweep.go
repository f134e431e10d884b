package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/internal/audit"
	"github.com/kwizz/kwizz-go/internal/config"
)

// GameSweeper is the slice of the game store the sweep needs.
type GameSweeper interface {
	// FinishIdleSince marks every unfinished paid game not updated since
	// before as finished and returns their ids.
	FinishIdleSince(ctx context.Context, before time.Time) ([]string, error)
	DeleteUnpaidBefore(ctx context.Context, before time.Time) ([]string, error)
}

// SweepJob periodically finishes games abandoned by their host so their
// pins become available again, and removes games that were never paid for.
type SweepJob struct {
	games       GameSweeper
	idleFor     time.Duration
	unpaidGrace time.Duration
	interval    time.Duration
	now         func() time.Time
	done        chan struct{}
	stopped     chan struct{}
}

func NewSweepJob(games GameSweeper, idleFor, interval time.Duration) *SweepJob {
	return &SweepJob{
		games:       games,
		idleFor:     idleFor,
		unpaidGrace: config.UnpaidGameGrace,
		interval:    interval,
		now:         time.Now,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("idleFor", j.idleFor).Msg("sweep job started")
}

// Stop ends the job and waits for an in-flight sweep to finish.
func (j *SweepJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep returns how many games it finished or removed.
func (j *SweepJob) sweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return j.finishIdle(ctx) + j.removeUnpaid(ctx)
}

func (j *SweepJob) finishIdle(ctx context.Context) int {
	ids, err := j.games.FinishIdleSince(ctx, j.now().Add(-j.idleFor))
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep idle games")
		return 0
	}
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("finished idle games")
		audit.Log(ctx, audit.Event{
			Type:    audit.EventGamesSwept,
			Details: map[string]interface{}{"count": len(ids), "gameIds": ids},
		})
	}
	return len(ids)
}

func (j *SweepJob) removeUnpaid(ctx context.Context) int {
	ids, err := j.games.DeleteUnpaidBefore(ctx, j.now().Add(-j.unpaidGrace))
	if err != nil {
		log.Error().Err(err).Msg("failed to remove unpaid games")
		return 0
	}
	if len(ids) > 0 {
		log.Warn().Int("count", len(ids)).Msg("removed unpaid games")
		audit.Log(ctx, audit.Event{
			Type:    audit.EventUnpaidRemoved,
			Details: map[string]interface{}{"count": len(ids), "gameIds": ids},
		})
	}
	return len(ids)
}
