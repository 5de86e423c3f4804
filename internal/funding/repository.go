package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
)

// RequestRepository persists deposit and withdraw requests. Update is a
// compare-and-set on Version.
type RequestRepository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	Update(ctx context.Context, req Request) (Request, error)
	List(ctx context.Context, filter RequestFilter) ([]Request, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// TransactionRepository persists transaction records.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction) error
	GetByTransactionID(ctx context.Context, userID, transactionID string) (Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]Transaction, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// PostgresRequestRepository stores requests in PostgreSQL.
type PostgresRequestRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRequestRepository builds a request repository backed by PostgreSQL.
func NewPostgresRequestRepository(db *pgxpool.Pool) *PostgresRequestRepository {
	return &PostgresRequestRepository{db: db}
}

const requestColumns = `id, user_id, type, amount::text, currency, network, wallet_address, status, admin_note, created_at, updated_at, version`

// Create inserts a request.
func (r *PostgresRequestRepository) Create(ctx context.Context, req Request) error {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO deposit_withdraw_requests
        (id, user_id, type, amount, currency, network, wallet_address, status, admin_note, created_at, updated_at, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, req.UserID, string(req.Type), req.Amount.String(), req.Currency, req.Network, req.WalletAddress,
		string(req.Status), req.AdminNote, req.CreatedAt.UTC(), req.UpdatedAt.UTC(), req.Version)
	return err
}

// Get fetches a request by identifier.
func (r *PostgresRequestRepository) Get(ctx context.Context, id string) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, fmt.Errorf("request %s: %w", id, ledger.ErrNotFound)
	}
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+requestColumns+` FROM deposit_withdraw_requests WHERE id = $1`, reqID)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("request %s: %w", id, ledger.ErrNotFound)
	}
	return req, err
}

// Update writes req when the stored version still equals req.Version.
func (r *PostgresRequestRepository) Update(ctx context.Context, req Request) (Request, error) {
	next := req
	next.Version = req.Version + 1
	next.UpdatedAt = time.Now().UTC()
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE deposit_withdraw_requests
        SET status = $1, admin_note = $2, updated_at = $3, version = $4
        WHERE id = $5 AND version = $6`,
		string(next.Status), next.AdminNote, next.UpdatedAt, next.Version, req.ID, req.Version)
	if err != nil {
		return Request{}, err
	}
	if tag.RowsAffected() == 0 {
		return Request{}, infra.ErrVersionConflict
	}
	return next, nil
}

// List returns requests matching filter, newest first.
func (r *PostgresRequestRepository) List(ctx context.Context, filter RequestFilter) ([]Request, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM deposit_withdraw_requests`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := infra.Conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// DeleteByUser removes every request of userID.
func (r *PostgresRequestRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `DELETE FROM deposit_withdraw_requests WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req       Request
		id        uuid.UUID
		typ       string
		status    string
		amountStr string
	)
	if err := row.Scan(&id, &req.UserID, &typ, &amountStr, &req.Currency, &req.Network, &req.WalletAddress,
		&status, &req.AdminNote, &req.CreatedAt, &req.UpdatedAt, &req.Version); err != nil {
		return Request{}, err
	}
	amount, err := ledger.ParseAmount(amountStr)
	if err != nil {
		return Request{}, fmt.Errorf("request %s: %w", id, err)
	}
	req.ID = id.String()
	req.Type = RequestType(typ)
	req.Status = Status(status)
	req.Amount = amount
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return req, nil
}

// PostgresTransactionRepository stores transaction records in PostgreSQL.
type PostgresTransactionRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTransactionRepository builds a transaction repository backed by PostgreSQL.
func NewPostgresTransactionRepository(db *pgxpool.Pool) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

const transactionColumns = `id, user_id, type, status, amount::text, currency, from_asset, to_asset,
        from_amount::text, to_amount::text, exchange_rate::text, transaction_id, created_at`

// Create inserts a transaction, reporting a TransactionID the user already used as a duplicate.
func (r *PostgresTransactionRepository) Create(ctx context.Context, tx Transaction) error {
	id, err := uuid.Parse(tx.ID)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO transactions
        (id, user_id, type, status, amount, currency, from_asset, to_asset, from_amount, to_amount, exchange_rate, transaction_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, tx.UserID, string(tx.Type), string(tx.Status), tx.Amount.String(), tx.Currency, tx.FromAsset, tx.ToAsset,
		tx.FromAmount.String(), tx.ToAmount.String(), tx.ExchangeRate.String(), tx.TransactionID, tx.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("transaction %s: %w", tx.TransactionID, ledger.ErrDuplicateTransaction)
	}
	return err
}

// GetByTransactionID fetches a transaction of userID by its idempotency identifier.
func (r *PostgresTransactionRepository) GetByTransactionID(ctx context.Context, userID, transactionID string) (Transaction, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE user_id = $1 AND transaction_id = $2`, userID, transactionID)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %s: %w", transactionID, ledger.ErrNotFound)
	}
	return tx, err
}

// ListByUser returns the user's transactions, newest first.
func (r *PostgresTransactionRepository) ListByUser(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := infra.Conn(ctx, r.db).Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// DeleteByUser removes every transaction of userID.
func (r *PostgresTransactionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx                                 Transaction
		id                                 uuid.UUID
		typ, status                        string
		amount, fromAmount, toAmount, rate string
	)
	if err := row.Scan(&id, &tx.UserID, &typ, &status, &amount, &tx.Currency, &tx.FromAsset, &tx.ToAsset,
		&fromAmount, &toAmount, &rate, &tx.TransactionID, &tx.CreatedAt); err != nil {
		return Transaction{}, err
	}
	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&tx.Amount, amount}, {&tx.FromAmount, fromAmount}, {&tx.ToAmount, toAmount}, {&tx.ExchangeRate, rate}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return Transaction{}, fmt.Errorf("parse decimal %q: %w", f.src, err)
		}
	}
	tx.ID = id.String()
	tx.Type = TransactionType(typ)
	tx.Status = TransactionStatus(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}
