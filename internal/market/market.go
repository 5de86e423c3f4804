package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/notification"
)

// Source returns the latest known price per pair, e.g. "BTCUSDT".
type Source interface {
	Snapshot(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Store is a Source that also accepts price updates from the ingester.
type Store interface {
	Source
	Update(ctx context.Context, prices map[string]decimal.Decimal) error
}

// Pair returns the quote pair for asset.
func Pair(asset string) string {
	if strings.HasSuffix(asset, ledger.QuoteAsset) && len(asset) > len(ledger.QuoteAsset) {
		return asset
	}
	return asset + ledger.QuoteAsset
}

func validate(prices map[string]decimal.Decimal) error {
	for pair, price := range prices {
		if pair == "" || !price.IsPositive() {
			return fmt.Errorf("%w: price %s for %q", ledger.ErrInvalidAmount, price, pair)
		}
	}
	return nil
}

func publish(ctx context.Context, n notification.Notifier, logger *slog.Logger, prices map[string]decimal.Decimal) {
	for pair, price := range prices {
		notification.Emit(ctx, n, logger, notification.Event{
			Name:    notification.MarketPriceUpdate,
			Payload: map[string]any{"pair": pair, "price": price},
		})
	}
}

// MemoryStore keeps prices in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	prices   map[string]decimal.Decimal
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewMemoryStore builds an in-memory price store seeded with initial.
func NewMemoryStore(initial map[string]decimal.Decimal, n notification.Notifier, logger *slog.Logger) *MemoryStore {
	prices := make(map[string]decimal.Decimal, len(initial))
	for k, v := range initial {
		prices[k] = v
	}
	return &MemoryStore{prices: prices, notifier: n, logger: logger}
}

// Snapshot returns a copy of the current prices.
func (m *MemoryStore) Snapshot(context.Context) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out, nil
}

// Update merges prices and publishes one marketPriceUpdate per pair.
func (m *MemoryStore) Update(ctx context.Context, prices map[string]decimal.Decimal) error {
	if err := validate(prices); err != nil {
		return err
	}
	m.mu.Lock()
	for k, v := range prices {
		m.prices[k] = v
	}
	m.mu.Unlock()
	publish(ctx, m.notifier, m.logger, prices)
	return nil
}

// DefaultPricesKey is the Redis hash holding the latest prices.
const DefaultPricesKey = "market:prices"

// RedisStore keeps prices in a Redis hash shared by every instance.
type RedisStore struct {
	client   redis.UniversalClient
	key      string
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewRedisStore builds a Redis-backed price store.
func NewRedisStore(client redis.UniversalClient, key string, n notification.Notifier, logger *slog.Logger) *RedisStore {
	if key == "" {
		key = DefaultPricesKey
	}
	return &RedisStore{client: client, key: key, notifier: n, logger: logger}
}

// Snapshot reads the whole hash. Unparseable and non-positive entries are skipped.
func (r *RedisStore) Snapshot(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read prices: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for pair, s := range raw {
		price, err := ledger.ParseAmount(s)
		if err != nil || price.IsZero() {
			if r.logger != nil {
				r.logger.Warn("skipping malformed price", slog.String("pair", pair), slog.String("value", s))
			}
			continue
		}
		out[pair] = price
	}
	return out, nil
}

// Update writes prices and publishes one marketPriceUpdate per pair.
func (r *RedisStore) Update(ctx context.Context, prices map[string]decimal.Decimal) error {
	if err := validate(prices); err != nil {
		return err
	}
	if len(prices) == 0 {
		return nil
	}
	values := make([]any, 0, len(prices)*2)
	for pair, price := range prices {
		values = append(values, pair, price.String())
	}
	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("write prices: %w", err)
	}
	publish(ctx, r.notifier, r.logger, prices)
	return nil
}
