package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rovobit/exchange/internal/infra"
)

// ErrWalletExists is returned when a user already owns a wallet.
var ErrWalletExists = errors.New("wallet already exists")

// Repository persists wallet documents. Update is a compare-and-set on
// Version and fails with infra.ErrVersionConflict when the stored document moved.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	GetByUser(ctx context.Context, userID string) (Wallet, error)
	Update(ctx context.Context, wallet Wallet) (Wallet, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// PostgresRepository stores each wallet as a JSONB document next to its version.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet document.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("encode wallet: %w", err)
	}
	_, err = infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO wallets (id, user_id, version, doc, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, walletID, wallet.UserID, wallet.Version, doc, wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrWalletExists
	}
	return err
}

// GetByUser loads the wallet owned by userID.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (Wallet, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT version, doc FROM wallets WHERE user_id = $1`, userID)
	var version int64
	var doc []byte
	if err := row.Scan(&version, &doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, ErrNotFound)
		}
		return Wallet{}, err
	}
	var w Wallet
	if err := json.Unmarshal(doc, &w); err != nil {
		return Wallet{}, fmt.Errorf("decode wallet: %w", err)
	}
	w.Version = version
	return w, nil
}

// Update writes wallet when the stored version still equals wallet.Version.
func (r *PostgresRepository) Update(ctx context.Context, wallet Wallet) (Wallet, error) {
	next := wallet
	next.Version = wallet.Version + 1
	next.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(next)
	if err != nil {
		return Wallet{}, fmt.Errorf("encode wallet: %w", err)
	}
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE wallets SET doc = $1, version = $2, updated_at = $3
        WHERE user_id = $4 AND version = $5`, doc, next.Version, next.UpdatedAt, wallet.UserID, wallet.Version)
	if err != nil {
		return Wallet{}, err
	}
	if tag.RowsAffected() == 0 {
		return Wallet{}, infra.ErrVersionConflict
	}
	return next, nil
}

// DeleteByUser removes the wallet owned by userID.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `DELETE FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet for user %s: %w", userID, ErrNotFound)
	}
	return nil
}
