package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
)

// TradeRepository persists spot trades. Update is a compare-and-set on Version.
type TradeRepository interface {
	Create(ctx context.Context, trade Trade) error
	Get(ctx context.Context, id string) (Trade, error)
	Update(ctx context.Context, trade Trade) (Trade, error)
	ListByUser(ctx context.Context, userID string) ([]Trade, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// PositionRepository persists leveraged positions. Update is a compare-and-set on Version.
type PositionRepository interface {
	Create(ctx context.Context, pos Position) error
	Get(ctx context.Context, id string) (Position, error)
	Update(ctx context.Context, pos Position) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListByUser(ctx context.Context, userID string) ([]Position, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

func parseDecimals(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		dst := pairs[i].(*decimal.Decimal)
		src := pairs[i+1].(string)
		v, err := decimal.NewFromString(src)
		if err != nil {
			return fmt.Errorf("parse decimal %q: %w", src, err)
		}
		*dst = v
	}
	return nil
}

// PostgresTradeRepository stores trades in PostgreSQL.
type PostgresTradeRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTradeRepository builds a trade repository backed by PostgreSQL.
func NewPostgresTradeRepository(db *pgxpool.Pool) *PostgresTradeRepository {
	return &PostgresTradeRepository{db: db}
}

const tradeColumns = `id, user_id, type, asset, quantity::text, price::text, total_cost::text, status, executed_at, version`

// Create inserts a trade.
func (r *PostgresTradeRepository) Create(ctx context.Context, t Trade) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO trades
        (id, user_id, type, asset, quantity, price, total_cost, status, executed_at, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, t.UserID, string(t.Type), t.Asset, t.Quantity.String(), t.Price.String(), t.TotalCost.String(),
		string(t.Status), t.ExecutedAt.UTC(), t.Version)
	return err
}

// Get fetches a trade by identifier.
func (r *PostgresTradeRepository) Get(ctx context.Context, id string) (Trade, error) {
	tradeID, err := uuid.Parse(id)
	if err != nil {
		return Trade{}, fmt.Errorf("trade %s: %w", id, ledger.ErrNotFound)
	}
	t, err := scanTrade(infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, tradeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Trade{}, fmt.Errorf("trade %s: %w", id, ledger.ErrNotFound)
	}
	return t, err
}

// Update writes the trade status when the stored version still equals t.Version.
func (r *PostgresTradeRepository) Update(ctx context.Context, t Trade) (Trade, error) {
	next := t
	next.Version = t.Version + 1
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE trades SET status = $1, total_cost = $2, executed_at = $3, version = $4
        WHERE id = $5 AND version = $6`,
		string(next.Status), next.TotalCost.String(), next.ExecutedAt.UTC(), next.Version, t.ID, t.Version)
	if err != nil {
		return Trade{}, err
	}
	if tag.RowsAffected() == 0 {
		return Trade{}, infra.ErrVersionConflict
	}
	return next, nil
}

// ListByUser returns the user's trades, newest first.
func (r *PostgresTradeRepository) ListByUser(ctx context.Context, userID string) ([]Trade, error) {
	rows, err := infra.Conn(ctx, r.db).Query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE user_id = $1 ORDER BY executed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteByUser removes every trade of userID.
func (r *PostgresTradeRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `DELETE FROM trades WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTrade(row pgx.Row) (Trade, error) {
	var (
		t                     Trade
		id                    uuid.UUID
		typ, status           string
		qty, price, totalCost string
	)
	if err := row.Scan(&id, &t.UserID, &typ, &t.Asset, &qty, &price, &totalCost, &status, &t.ExecutedAt, &t.Version); err != nil {
		return Trade{}, err
	}
	if err := parseDecimals(&t.Quantity, qty, &t.Price, price, &t.TotalCost, totalCost); err != nil {
		return Trade{}, err
	}
	t.ID = id.String()
	t.Type = TradeType(typ)
	t.Status = TradeStatus(status)
	t.ExecutedAt = t.ExecutedAt.UTC()
	return t, nil
}

// PostgresPositionRepository stores positions in PostgreSQL.
type PostgresPositionRepository struct {
	db *pgxpool.Pool
}

// NewPostgresPositionRepository builds a position repository backed by PostgreSQL.
func NewPostgresPositionRepository(db *pgxpool.Pool) *PostgresPositionRepository {
	return &PostgresPositionRepository{db: db}
}

const positionColumns = `id, user_id, category, asset, side, entry_price::text, assets_amount::text, leverage::text,
        margin_used::text, status, opened_at, expires_at, closed_at, profit_loss::text, close_price::text, version`

// Create inserts a position.
func (r *PostgresPositionRepository) Create(ctx context.Context, p Position) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO positions
        (id, user_id, category, asset, side, entry_price, assets_amount, leverage, margin_used, status,
         opened_at, expires_at, closed_at, profit_loss, close_price, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		id, p.UserID, string(p.Category), p.Asset, string(p.Side), p.EntryPrice.String(), p.AssetsAmount.String(),
		p.Leverage.String(), p.MarginUsed.String(), string(p.Status), p.OpenedAt.UTC(), p.ExpiresAt, p.ClosedAt,
		p.ProfitLoss.String(), p.ClosePrice.String(), p.Version)
	return err
}

// Get fetches a position by identifier.
func (r *PostgresPositionRepository) Get(ctx context.Context, id string) (Position, error) {
	posID, err := uuid.Parse(id)
	if err != nil {
		return Position{}, fmt.Errorf("position %s: %w", id, ledger.ErrNotFound)
	}
	p, err := scanPosition(infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, posID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{}, fmt.Errorf("position %s: %w", id, ledger.ErrNotFound)
	}
	return p, err
}

// Update writes the closing fields when the stored version still equals p.Version.
func (r *PostgresPositionRepository) Update(ctx context.Context, p Position) (Position, error) {
	next := p
	next.Version = p.Version + 1
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE positions
        SET status = $1, closed_at = $2, profit_loss = $3, close_price = $4, version = $5
        WHERE id = $6 AND version = $7`,
		string(next.Status), next.ClosedAt, next.ProfitLoss.String(), next.ClosePrice.String(), next.Version, p.ID, p.Version)
	if err != nil {
		return Position{}, err
	}
	if tag.RowsAffected() == 0 {
		return Position{}, infra.ErrVersionConflict
	}
	return next, nil
}

// ListOpen returns every open position of both categories.
func (r *PostgresPositionRepository) ListOpen(ctx context.Context) ([]Position, error) {
	return r.list(ctx, `SELECT `+positionColumns+` FROM positions WHERE status = $1 ORDER BY opened_at`, string(PositionOpen))
}

// ListByUser returns the user's positions, newest first.
func (r *PostgresPositionRepository) ListByUser(ctx context.Context, userID string) ([]Position, error) {
	return r.list(ctx, `SELECT `+positionColumns+` FROM positions WHERE user_id = $1 ORDER BY opened_at DESC`, userID)
}

func (r *PostgresPositionRepository) list(ctx context.Context, query string, args ...any) ([]Position, error) {
	rows, err := infra.Conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteByUser removes every position of userID.
func (r *PostgresPositionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `DELETE FROM positions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPosition(row pgx.Row) (Position, error) {
	var (
		p                               Position
		id                              uuid.UUID
		category, side, status          string
		entry, amount, leverage, margin string
		profitLoss, closePrice          string
		expiresAt, closedAt             *time.Time
	)
	if err := row.Scan(&id, &p.UserID, &category, &p.Asset, &side, &entry, &amount, &leverage, &margin, &status,
		&p.OpenedAt, &expiresAt, &closedAt, &profitLoss, &closePrice, &p.Version); err != nil {
		return Position{}, err
	}
	if err := parseDecimals(&p.EntryPrice, entry, &p.AssetsAmount, amount, &p.Leverage, leverage,
		&p.MarginUsed, margin, &p.ProfitLoss, profitLoss, &p.ClosePrice, closePrice); err != nil {
		return Position{}, err
	}
	p.ID = id.String()
	p.Category = Category(category)
	p.Side = Side(side)
	p.Status = PositionStatus(status)
	p.OpenedAt = p.OpenedAt.UTC()
	p.ExpiresAt = expiresAt
	p.ClosedAt = closedAt
	return p, nil
}
