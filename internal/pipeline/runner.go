package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/trogers1052/nzx-scorer/internal/cache"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

// ErrRunInProgress is returned when another run holds the pipeline lock
var ErrRunInProgress = errors.New("a scoring run is already in progress")

// Scorer ranks a scrape batch
type Scorer interface {
	Score(batch models.ScrapeBatch) (*models.ScoredBatch, error)
}

// Store persists scored runs and price history
type Store interface {
	SaveScoredBatch(b *models.ScoredBatch) error
	SavePriceHistory(ticker string, prices []models.PricePoint) error
	DeleteRunsOlderThan(date time.Time) (int64, error)
	DeletePricesOlderThan(date time.Time) (int64, error)
}

// Cache holds the run lock and the latest scored batch
type Cache interface {
	AcquireRunLock(ctx context.Context) (string, error)
	ReleaseRunLock(ctx context.Context, token string) error
	SetLatestBatch(ctx context.Context, batch *models.ScoredBatch) error
	InvalidateLatestPrices(ctx context.Context, tickers ...string) error
}

// Sink delivers results to the remote endpoint
type Sink interface {
	SendBatch(ctx context.Context, batch *models.ScoredBatch) error
	SendFailure(ctx context.Context, date time.Time) error
	SendReports(ctx context.Context, paths []string) (int, error)
}

// Publisher announces run outcomes
type Publisher interface {
	PublishBatchScored(ctx context.Context, batch *models.ScoredBatch) error
	PublishBatchFailed(ctx context.Context, batch *models.ScoredBatch) error
}

// Runner takes one scrape batch through scoring, storage, delivery and
// notification. Only one run may be active at a time across instances.
type Runner struct {
	scorer    Scorer
	store     Store
	cache     Cache
	sink      Sink
	publisher Publisher
	retention time.Duration
	log       zerolog.Logger
	newID     func() string
	now       func() time.Time
}

// NewRunner creates a Runner. publisher may be nil when Kafka is disabled.
func NewRunner(scorer Scorer, store Store, c Cache, sink Sink, publisher Publisher, log zerolog.Logger) *Runner {
	return &Runner{
		scorer:    scorer,
		store:     store,
		cache:     c,
		sink:      sink,
		publisher: publisher,
		log:       log.With().Str("module", "pipeline").Logger(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// SetRetention makes each successful run prune runs and prices older than d
func (r *Runner) SetRetention(d time.Duration) {
	r.retention = d
}

// Run scores and delivers batch. The returned ScoredBatch describes the
// stored run and is non-nil whenever the lock was acquired.
//
// An unsuccessful scrape is recorded and delivered as failed without an
// error. A batch that fails scoring is recorded and delivered the same way
// and the scoring error is returned.
func (r *Runner) Run(ctx context.Context, batch models.ScrapeBatch) (*models.ScoredBatch, error) {
	token, err := r.cache.AcquireRunLock(ctx)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		// release even if ctx was cancelled mid-run
		if err := r.cache.ReleaseRunLock(context.WithoutCancel(ctx), token); err != nil {
			r.log.Error().Err(err).Msg("failed to release run lock")
		}
	}()

	start := r.now()
	log := r.log.With().Str("batch_id", batch.ID).Logger()

	if !batch.Success {
		log.Warn().Msg("scrape was unsuccessful")
		result := &models.ScoredBatch{
			RunID:      r.newID(),
			BatchID:    batch.ID,
			ScrapeDate: batch.ScrapeDate,
			Status:     models.StatusFailed,
			Companies:  []models.ScoredCompany{},
			ScoredAt:   start,
		}
		return result, r.fail(ctx, result)
	}

	result, scoreErr := r.scorer.Score(batch)
	result.RunID = r.newID()
	log = log.With().Str("run_id", result.RunID).Logger()

	if result.Status == models.StatusFailed {
		log.Error().Err(scoreErr).Int("failures", len(result.Failures)).Msg("batch could not be scored")
		if err := r.fail(ctx, result); err != nil {
			return result, errors.Join(scoreErr, err)
		}
		return result, scoreErr
	}

	if err := r.deliver(ctx, batch, result); err != nil {
		return result, err
	}

	r.prune(result.ScrapeDate)

	elapsed := r.now().Sub(start).Seconds()
	log.Info().
		Str("status", result.Status).
		Int("companies", len(result.Companies)).
		Int("failures", len(result.Failures)).
		Float64("seconds", elapsed).
		Float64("seconds_per_company", elapsed/float64(len(batch.Companies))).
		Msg("run complete")
	return result, nil
}

// deliver stores, caches, sends and publishes a scored batch
func (r *Runner) deliver(ctx context.Context, batch models.ScrapeBatch, result *models.ScoredBatch) error {
	if err := r.store.SaveScoredBatch(result); err != nil {
		return fmt.Errorf("failed to save scored batch: %w", err)
	}

	var saved []string
	for i := range result.Companies {
		c := &result.Companies[i]
		if len(c.HistoricalPrices) == 0 {
			continue
		}
		if err := r.store.SavePriceHistory(c.Ticker, c.HistoricalPrices); err != nil {
			return fmt.Errorf("failed to save price history: %w", err)
		}
		saved = append(saved, c.Ticker)
	}
	if err := r.cache.InvalidateLatestPrices(ctx, saved...); err != nil {
		r.log.Warn().Err(err).Msg("failed to invalidate cached prices")
	}

	if err := r.cache.SetLatestBatch(ctx, result); err != nil {
		r.log.Warn().Err(err).Msg("failed to cache latest batch")
	}

	var errs []error
	if err := r.sink.SendBatch(ctx, result); err != nil {
		errs = append(errs, err)
	} else {
		sent, err := r.sink.SendReports(ctx, batch.Reports)
		if err != nil {
			errs = append(errs, err)
		}
		r.log.Info().Int("reports", sent).Msg("reports delivered")
	}

	if r.publisher != nil {
		if err := r.publisher.PublishBatchScored(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish batch scored: %w", err))
		}
	}
	return errors.Join(errs...)
}

// prune drops stored data older than the retention window. Errors are logged only.
func (r *Runner) prune(from time.Time) {
	if r.retention <= 0 {
		return
	}
	cutoff := from.Add(-r.retention)

	runs, err := r.store.DeleteRunsOlderThan(cutoff)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to prune scoring runs")
	}
	prices, err := r.store.DeletePricesOlderThan(cutoff)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to prune price history")
	}
	if runs > 0 || prices > 0 {
		r.log.Info().
			Time("cutoff", cutoff).
			Int64("runs", runs).
			Int64("prices", prices).
			Msg("pruned old data")
	}
}

// fail stores the failed run, sends the unsuccessful payload and publishes BATCH_FAILED
func (r *Runner) fail(ctx context.Context, result *models.ScoredBatch) error {
	if err := r.store.SaveScoredBatch(result); err != nil {
		return fmt.Errorf("failed to save failed run: %w", err)
	}

	var errs []error
	if err := r.sink.SendFailure(ctx, result.ScrapeDate); err != nil {
		errs = append(errs, err)
	}
	if r.publisher != nil {
		if err := r.publisher.PublishBatchFailed(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish batch failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
