package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/market"
	"github.com/rovobit/exchange/internal/metrics"
)

// Lock guarantees a single sweeper runs at a time across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX PX lock with an owner token.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	token  string
}

// NewRedisLock builds a lock on key that expires after ttl if never released.
func NewRedisLock(client redis.UniversalClient, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl, token: uuid.NewString()}
}

// Acquire tries to take the lock without blocking.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release frees the lock if this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Liquidation reasons reported by the sweeper.
const (
	ReasonMargin  = "margin"
	ReasonExpired = "expired"
)

// SweepResult summarises one pass.
type SweepResult struct {
	Checked int
	Closed  int
	Failed  int
}

// Sweeper periodically closes open positions whose margin is exhausted at
// the current mark price or whose expiry has passed.
type Sweeper struct {
	svc      *Service
	prices   market.Source
	lock     Lock
	interval time.Duration
	workers  int
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// SweeperConfig tunes the sweep loop.
type SweeperConfig struct {
	Interval time.Duration
	Workers  int
}

// NewSweeper builds a sweeper. A nil lock lets every pass run.
func NewSweeper(svc *Service, prices market.Source, lock Lock, cfg SweeperConfig, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		svc:      svc,
		prices:   prices,
		lock:     lock,
		interval: cfg.Interval,
		workers:  cfg.Workers,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run schedules a sweep every interval until ctx is cancelled. A pass that
// overruns the interval makes the next tick skip.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+s.interval.String(), func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule liquidation sweep: %w", err)
	}
	c.Start()
	s.logger.Info("liquidation sweeper started", slog.Duration("interval", s.interval), slog.Int("workers", s.workers))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("liquidation sweeper stopped")
	return nil
}

func (s *Sweeper) tick(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("liquidation sweep failed", slog.Any("error", err))
		return
	}
	if res.Closed > 0 || res.Failed > 0 {
		s.logger.Info("liquidation sweep finished", slog.Int("checked", res.Checked),
			slog.Int("closed", res.Closed), slog.Int("failed", res.Failed))
	}
}

// Sweep runs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return SweepResult{}, err
		}
		if !ok {
			return SweepResult{}, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sweep lock", slog.Any("error", err))
			}
		}()
	}

	prices, err := s.prices.Snapshot(ctx)
	if err != nil {
		// Expiry does not need prices, so carry on without them.
		s.logger.Warn("price snapshot unavailable", slog.Any("error", err))
		prices = nil
	}
	open, err := s.svc.OpenTrades(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	now := s.now()
	var closed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, pos := range open {
		reason, price := due(pos, prices, now)
		if reason == "" {
			continue
		}
		pos := pos
		g.Go(func() error {
			_, err := s.svc.Liquidate(gctx, pos.ID, price, nil)
			switch {
			case err == nil:
				closed.Add(1)
				s.metrics.Liquidation(reason)
			case errors.Is(err, ledger.ErrAlreadyClosed):
			default:
				failed.Add(1)
				s.logger.Error("sweep liquidation failed", slog.String("position_id", pos.ID),
					slog.String("reason", reason), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{Checked: len(open), Closed: int(closed.Load()), Failed: int(failed.Load())}, nil
}

// due returns why pos must close now and the price to close it at. Expired
// positions without a mark price close at their entry price.
func due(pos Position, prices map[string]decimal.Decimal, now time.Time) (string, decimal.Decimal) {
	mark, ok := prices[market.Pair(pos.Asset)]
	if ok && mark.IsPositive() && MarginExhausted(pos, mark) {
		return ReasonMargin, mark
	}
	if pos.Expired(now) {
		if !ok || !mark.IsPositive() {
			mark = pos.EntryPrice
		}
		return ReasonExpired, mark
	}
	return "", decimal.Zero
}
