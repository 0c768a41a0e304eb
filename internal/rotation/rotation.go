// Package rotation re-encrypts stored credentials under the current master
// key version, on demand or on a cron schedule.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relaygate/internal/audit"
	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/metrics"
	"github.com/gosuda/relaygate/internal/secrets"
)

// DefaultBatchSize bounds how many credentials one RotateStale call handles.
const DefaultBatchSize = 500

// ErrAlreadyRunning is returned when Run is called while a run is in flight.
var ErrAlreadyRunning = errors.New("rotation: already running")

// Store rotates stale credentials. *secrets.CredentialService satisfies
// this interface.
type Store interface {
	RotateStale(ctx context.Context, after *secrets.StaleCursor, batchSize int) (secrets.RotationBatch, error)
}

// Summary counts the outcomes of a run.
type Summary struct {
	Rotated int
	Skipped int
	Failed  int
	Batches int
}

// Job rotates every stale credential, batch by batch.
type Job struct {
	store     Store
	batchSize int
	emitter   *audit.Emitter

	mu      sync.Mutex
	running bool
}

// NewJob creates a Job. emitter may be nil.
func NewJob(store Store, batchSize int, emitter *audit.Emitter) *Job {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Job{store: store, batchSize: batchSize, emitter: emitter}
}

// Run pages through every stale credential once, batch by batch, until a
// batch comes back short. Credentials that failed are left for the next run
// and never hold back the ones behind them.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return Summary{}, ErrAlreadyRunning
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	var (
		sum    Summary
		cursor *secrets.StaleCursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("rotation.Run: %w", err)
		}

		batch, err := j.store.RotateStale(ctx, cursor, j.batchSize)
		if err != nil {
			return sum, fmt.Errorf("rotation.Run: %w", err)
		}
		sum.Batches++

		results := batch.Results
		for i := range results {
			res := &results[i]
			switch {
			case res.Err != nil:
				sum.Failed++
				metrics.RotationsTotal.WithLabelValues("failed").Inc()
			case res.Rotated:
				sum.Rotated++
				metrics.RotationsTotal.WithLabelValues("rotated").Inc()
			default:
				sum.Skipped++
				metrics.RotationsTotal.WithLabelValues("skipped").Inc()
			}
			j.audit(ctx, res)
		}

		if len(results) < j.batchSize || batch.Next == nil {
			break
		}
		cursor = batch.Next
	}

	log.Info().
		Int("rotated", sum.Rotated).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("batches", sum.Batches).
		Msg("rotation: run complete")
	return sum, nil
}

func (j *Job) audit(ctx context.Context, res *secrets.RotationResult) {
	if j.emitter == nil || (!res.Rotated && res.Err == nil) {
		return
	}

	rec := &domain.AuditRecord{
		EventType:    "credential.rotated",
		Category:     domain.AuditCategoryCredential,
		ActorID:      "system:rotation",
		ResourceType: "credential",
		ResourceID:   res.ID,
		Result:       domain.AuditResultSuccess,
		Metadata: map[string]any{
			"from_version": res.FromVersion,
			"to_version":   res.ToVersion,
		},
	}
	if res.Err != nil {
		rec.Result = domain.AuditResultFailure
		rec.Metadata["error"] = audit.Truncate(res.Err.Error(), audit.DefaultMaxFieldLength)
	}
	_, _ = j.emitter.Emit(ctx, rec, res.Err != nil)
}

// Schedule runs the job on spec, a standard five-field cron expression.
// Overlapping ticks are skipped. The caller starts and stops the returned
// scheduler.
func Schedule(ctx context.Context, spec string, job *Job) (*cron.Cron, error) {
	logger := cronLogger{log: log.With().Str("component", "rotation.cron").Logger()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(spec, func() {
		if _, err := job.Run(ctx); err != nil {
			log.Error().Err(err).Msg("rotation: scheduled run failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("rotation.Schedule: %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
