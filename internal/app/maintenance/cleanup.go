package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/models"
	"github.com/aiva-app/notify/internal/services"
	"github.com/aiva-app/notify/pkg/logger"
)

const (
	defaultTokenRetentionDays   = 60
	defaultConsentRetentionDays = 730
	defaultTokenSpec            = "@daily"
	defaultConsentSpec          = "@weekly"
)

// Cleaner runs the background retention jobs: deactivating push tokens whose
// last validation is older than the token retention window, and pruning
// consent events past the audit retention window.
type Cleaner struct {
	db     *gorm.DB
	tokens *services.TokenService
	cron   *cron.Cron
	now    func() time.Time
	log    *zap.Logger

	tokenRetentionDays   int
	consentRetentionDays int
	tokenSchedule        string
	consentSchedule      string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenRetentionDays adjusts how long an unvalidated token stays active.
func WithTokenRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.tokenRetentionDays = days
		}
	}
}

// WithConsentRetentionDays adjusts how long consent events are kept.
func WithConsentRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.consentRetentionDays = days
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithConsentSchedule overrides the cron specification for consent pruning.
func WithConsentSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.consentSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with the default retention windows.
func NewCleaner(db *gorm.DB, tokens *services.TokenService, opts ...Option) (*Cleaner, error) {
	if db == nil {
		return nil, errors.New("maintenance: db is required")
	}
	if tokens == nil {
		return nil, errors.New("maintenance: token service is required")
	}

	cleaner := &Cleaner{
		db:                   db,
		tokens:               tokens,
		now:                  time.Now,
		tokenRetentionDays:   defaultTokenRetentionDays,
		consentRetentionDays: defaultConsentRetentionDays,
		tokenSchedule:        defaultTokenSpec,
		consentSchedule:      defaultConsentSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner, nil
}

// Start registers the cleanup jobs with the scheduler and launches it.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
		if _, err := c.deactivateStaleTokens(context.Background()); err != nil {
			c.log.Warn("token cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.cron.AddFunc(c.consentSchedule, func() {
		if _, err := c.pruneConsentEvents(context.Background()); err != nil {
			c.log.Warn("consent event cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes both cleanup routines sequentially. Used in tests and
// during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if _, err := c.deactivateStaleTokens(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := c.pruneConsentEvents(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

func (c *Cleaner) deactivateStaleTokens(ctx context.Context) (int64, error) {
	cutoff := c.now().AddDate(0, 0, -c.tokenRetentionDays)

	affected, err := c.tokens.DeactivateStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		c.log.Info("deactivated stale push tokens",
			zap.Int64("count", affected),
			zap.Time("cutoff", cutoff),
		)
	}
	return affected, nil
}

func (c *Cleaner) pruneConsentEvents(ctx context.Context) (int64, error) {
	cutoff := c.now().AddDate(0, 0, -c.consentRetentionDays)

	res := c.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.ConsentEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("maintenance: prune consent events: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		c.log.Info("pruned consent events",
			zap.Int64("count", res.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return res.RowsAffected, nil
}
