package usage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AniJ15/timbr/internal/models"
)

// DefaultCeiling is the upstream free-tier allowance per calendar month
const DefaultCeiling = 1000

// Store persists the counter across process restarts. found is false when
// nothing has been saved yet.
type Store interface {
	LoadUsage(ctx context.Context) (counter models.UsageCounter, found bool, err error)
	SaveUsage(ctx context.Context, counter models.UsageCounter) error
}

// Snapshot is a point-in-time view of quota consumption
type Snapshot struct {
	Count      int       `json:"count"`
	Ceiling    int       `json:"ceiling"`
	PeriodEnd  time.Time `json:"period_end"`
	Percentage float64   `json:"percentage"`
}

// Tracker enforces a monthly call quota against the listings API. All methods
// are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	store   Store
	ceiling int
	now     func() time.Time
	logger  *logrus.Logger
	counter models.UsageCounter
	warned  bool

	// exhausted is set once the limit warning has been logged this period
	exhausted bool
}

// Option customizes a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker loads the persisted counter, initializing a fresh period when
// none exists, and applies any pending period reset
func NewTracker(ctx context.Context, store Store, ceiling int, logger *logrus.Logger, opts ...Option) (*Tracker, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}

	t := &Tracker{
		store:   store,
		ceiling: ceiling,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}

	counter, found, err := store.LoadUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage counter: %w", err)
	}

	if !found {
		counter = models.UsageCounter{Count: 0, PeriodEnd: NextPeriodStart(t.now())}
		if err := store.SaveUsage(ctx, counter); err != nil {
			return nil, fmt.Errorf("failed to initialize usage counter: %w", err)
		}
	}
	t.counter = counter
	t.warned = t.overWarningThreshold()

	t.ResetIfPeriodElapsed(ctx)
	return t, nil
}

// NextPeriodStart returns midnight on the first day of the month after now
func NextPeriodStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
}

// CanConsume reports whether another upstream call fits in the quota. A false
// result is a routing signal, not an error.
func (t *Tracker) CanConsume(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked(ctx)
	if t.counter.Count >= t.ceiling {
		entry := t.logger.WithFields(logrus.Fields{
			"count":   t.counter.Count,
			"ceiling": t.ceiling,
		})
		if t.exhausted {
			entry.Debug("Monthly listings API limit reached")
		} else {
			t.exhausted = true
			entry.Warn("Monthly listings API limit reached")
		}
		return false
	}
	return true
}

// Consume records one upstream call. It does not check the ceiling; callers
// must ask CanConsume first.
func (t *Tracker) Consume(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked(ctx)
	t.counter.Count++
	t.persistLocked(ctx)

	t.logger.WithFields(logrus.Fields{
		"count":   t.counter.Count,
		"ceiling": t.ceiling,
	}).Debug("Recorded listings API call")

	if !t.warned && t.overWarningThreshold() {
		t.warned = true
		t.logger.WithFields(logrus.Fields{
			"count":   t.counter.Count,
			"ceiling": t.ceiling,
		}).Warn("Approaching monthly listings API limit")
	}
}

// ResetIfPeriodElapsed starts a new period once now is past the period end
func (t *Tracker) ResetIfPeriodElapsed(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(ctx)
}

// Snapshot returns the current usage figures
func (t *Tracker) Snapshot(ctx context.Context) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked(ctx)
	return Snapshot{
		Count:      t.counter.Count,
		Ceiling:    t.ceiling,
		PeriodEnd:  t.counter.PeriodEnd,
		Percentage: float64(t.counter.Count) / float64(t.ceiling) * 100.0,
	}
}

func (t *Tracker) resetLocked(ctx context.Context) {
	now := t.now()
	if !now.After(t.counter.PeriodEnd) {
		return
	}

	previous := t.counter.Count
	t.counter.Count = 0
	t.counter.PeriodEnd = NextPeriodStart(now)
	t.warned = false
	t.exhausted = false
	t.persistLocked(ctx)

	t.logger.WithFields(logrus.Fields{
		"previous_count": previous,
		"period_end":     t.counter.PeriodEnd,
	}).Info("Monthly listings API usage reset")
}

func (t *Tracker) persistLocked(ctx context.Context) {
	if err := t.store.SaveUsage(ctx, t.counter); err != nil {
		// The in-memory counter stays authoritative for this process
		t.logger.WithError(err).Error("Failed to persist usage counter")
	}
}

func (t *Tracker) overWarningThreshold() bool {
	return t.counter.Count >= t.ceiling*9/10
}
