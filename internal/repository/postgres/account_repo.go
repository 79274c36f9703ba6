package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/model"
	"github.com/and161185/fba-recon/internal/spapi"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) (int64, error) {
	const q = `
INSERT INTO seller_accounts (name, region, marketplaces, refresh_token_enc, active)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	var id int64
	err := r.db.Pool.QueryRow(ctx, q, a.Name, a.Region, strings.Join(a.Marketplaces, ","), a.RefreshTokenEnc, a.Active).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: account %q already exists", errs.ErrInvalidInput, a.Name)
	}
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

const accountCols = `id, name, region, marketplaces, refresh_token_enc, active, created_at`

// Get selects an account by id.
func (r *AccountRepo) Get(ctx context.Context, id int64) (*model.Account, error) {
	q := `SELECT ` + accountCols + ` FROM seller_accounts WHERE id=$1`
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListActive selects accounts enabled for sync ordered by id.
func (r *AccountRepo) ListActive(ctx context.Context) ([]model.Account, error) {
	q := `SELECT ` + accountCols + ` FROM seller_accounts WHERE active ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a   model.Account
		mks string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Region, &mks, &a.RefreshTokenEnc, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Marketplaces = spapi.ParseMarketplaces(mks)
	return &a, nil
}
