// Package postgres implements the storage interfaces over database/sql.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/domainledger/registry_layer/internal/app/domain/fraction"
	"github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/domain/treasury"
	"github.com/domainledger/registry_layer/internal/app/storage"
)

// Store is a postgres-backed implementation of every storage interface.
type Store struct {
	db *sql.DB
}

var (
	_ storage.RegistryStore = (*Store)(nil)
	_ storage.TreasuryStore = (*Store)(nil)
	_ storage.FractionStore = (*Store)(nil)
	_ storage.OracleStore   = (*Store)(nil)
)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// RegistryStore implementation ------------------------------------------------

func (s *Store) PutDomain(ctx context.Context, rec registry.Record) (registry.Record, error) {
	now := time.Now().UTC()
	rec.Name = registry.Normalize(rec.Name)
	rec.Suffix = registry.Normalize(rec.Suffix)
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (full_domain, name, suffix, owner, registered_at, expires_at, years_purchased, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (full_domain) DO UPDATE SET
			owner = EXCLUDED.owner,
			registered_at = EXCLUDED.registered_at,
			expires_at = EXCLUDED.expires_at,
			years_purchased = EXCLUDED.years_purchased,
			updated_at = EXCLUDED.updated_at`,
		rec.FullDomain(), rec.Name, rec.Suffix, rec.Owner,
		rec.RegisteredAt, rec.ExpiresAt, rec.YearsPurchased,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return registry.Record{}, fmt.Errorf("put domain: %w", err)
	}
	return rec, nil
}

func (s *Store) GetDomain(ctx context.Context, fullDomain string) (registry.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, suffix, owner, registered_at, expires_at, years_purchased, created_at, updated_at
		FROM domains WHERE full_domain = $1`,
		registry.Normalize(fullDomain))

	var rec registry.Record
	err := row.Scan(&rec.Name, &rec.Suffix, &rec.Owner, &rec.RegisteredAt,
		&rec.ExpiresAt, &rec.YearsPurchased, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Record{}, registry.ErrDomainNotFound
	}
	if err != nil {
		return registry.Record{}, fmt.Errorf("get domain: %w", err)
	}
	return rec, nil
}

func (s *Store) DeleteDomain(ctx context.Context, fullDomain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domains WHERE full_domain = $1`,
		registry.Normalize(fullDomain))
	return err
}

func (s *Store) ListOwnerDomains(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT full_domain FROM domains WHERE owner = $1 ORDER BY full_domain`, owner)
	if err != nil {
		return nil, fmt.Errorf("list owner domains: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) ListExpiring(ctx context.Context, owners []string, before time.Time) ([]registry.Record, error) {
	query := `
		SELECT name, suffix, owner, registered_at, expires_at, years_purchased, created_at, updated_at
		FROM domains WHERE expires_at < $1`
	args := []any{before}
	if owners != nil {
		query += ` AND owner = ANY($2)`
		args = append(args, pq.Array(owners))
	}
	query += ` ORDER BY expires_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expiring: %w", err)
	}
	defer rows.Close()

	var out []registry.Record
	for rows.Next() {
		var rec registry.Record
		if err := rows.Scan(&rec.Name, &rec.Suffix, &rec.Owner, &rec.RegisteredAt,
			&rec.ExpiresAt, &rec.YearsPurchased, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetSuffixPrice(ctx context.Context, suffix string, perYear *big.Int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suffix_prices (suffix, per_year, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (suffix) DO UPDATE SET per_year = EXCLUDED.per_year, updated_at = EXCLUDED.updated_at`,
		registry.Normalize(suffix), perYear.String(), time.Now().UTC())
	return err
}

func (s *Store) GetSuffixPrice(ctx context.Context, suffix string) (*big.Int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT per_year FROM suffix_prices WHERE suffix = $1`,
		registry.Normalize(suffix))

	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get suffix price: %w", err)
	}
	return parseNumeric(raw)
}

func (s *Store) ListSuffixPrices(ctx context.Context) (map[string]*big.Int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT suffix, per_year FROM suffix_prices`)
	if err != nil {
		return nil, fmt.Errorf("list suffix prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*big.Int)
	for rows.Next() {
		var (
			suffix string
			raw    string
		)
		if err := rows.Scan(&suffix, &raw); err != nil {
			return nil, err
		}
		price, err := parseNumeric(raw)
		if err != nil {
			return nil, err
		}
		out[suffix] = price
	}
	return out, rows.Err()
}

// TreasuryStore implementation ------------------------------------------------

func (s *Store) GetTreasuryAccount(ctx context.Context, fullDomain string) (treasury.Account, error) {
	key := registry.Normalize(fullDomain)
	row := s.db.QueryRowContext(ctx, `
		SELECT balance, fee_bps, created_at, updated_at
		FROM treasury_accounts WHERE full_domain = $1`, key)

	acct := treasury.Account{FullDomain: key, Balance: new(big.Int)}
	var raw string
	err := row.Scan(&raw, &acct.FeeBps, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return acct, nil
	}
	if err != nil {
		return treasury.Account{}, fmt.Errorf("get treasury account: %w", err)
	}
	acct.Balance, err = parseNumeric(raw)
	if err != nil {
		return treasury.Account{}, err
	}
	return acct, nil
}

func (s *Store) PutTreasuryAccount(ctx context.Context, acct treasury.Account) (treasury.Account, error) {
	now := time.Now().UTC()
	acct.FullDomain = registry.Normalize(acct.FullDomain)
	acct.UpdatedAt = now
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	if acct.Balance == nil {
		acct.Balance = new(big.Int)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_accounts (full_domain, balance, fee_bps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (full_domain) DO UPDATE SET
			balance = EXCLUDED.balance,
			fee_bps = EXCLUDED.fee_bps,
			updated_at = EXCLUDED.updated_at`,
		acct.FullDomain, acct.Balance.String(), acct.FeeBps, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return treasury.Account{}, fmt.Errorf("put treasury account: %w", err)
	}
	return acct, nil
}

// FractionStore implementation ------------------------------------------------

func (s *Store) CreateFraction(ctx context.Context, rec fraction.Record) (fraction.Record, error) {
	now := time.Now().UTC()
	rec.FullDomain = registry.Normalize(rec.FullDomain)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fractions (full_domain, token_id, domain_owner, unlock_time, status, unlocked, price_per_share, public_sold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (full_domain) DO NOTHING`,
		rec.FullDomain, rec.TokenID, rec.DomainOwner, rec.UnlockTime, string(rec.Status),
		rec.Unlocked, rec.PricePerShare.String(), rec.PublicSold.String(),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fraction.Record{}, fmt.Errorf("create fraction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fraction.Record{}, fraction.ErrAlreadyEnabled
	}
	return rec, nil
}

func (s *Store) UpdateFraction(ctx context.Context, rec fraction.Record) (fraction.Record, error) {
	rec.FullDomain = registry.Normalize(rec.FullDomain)
	rec.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE fractions SET
			token_id = $2,
			domain_owner = $3,
			unlock_time = $4,
			status = $5,
			unlocked = $6,
			price_per_share = $7,
			public_sold = $8,
			updated_at = $9
		WHERE full_domain = $1`,
		rec.FullDomain, rec.TokenID, rec.DomainOwner, rec.UnlockTime, string(rec.Status),
		rec.Unlocked, rec.PricePerShare.String(), rec.PublicSold.String(), rec.UpdatedAt)
	if err != nil {
		return fraction.Record{}, fmt.Errorf("update fraction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fraction.Record{}, fraction.ErrNotEnabled
	}
	return rec, nil
}

func (s *Store) GetFraction(ctx context.Context, fullDomain string) (fraction.Record, error) {
	key := registry.Normalize(fullDomain)
	row := s.db.QueryRowContext(ctx, `
		SELECT token_id, domain_owner, unlock_time, status, unlocked, price_per_share, public_sold, created_at, updated_at
		FROM fractions WHERE full_domain = $1`, key)

	rec := fraction.Record{FullDomain: key}
	var (
		status string
		price  string
		sold   string
	)
	err := row.Scan(&rec.TokenID, &rec.DomainOwner, &rec.UnlockTime, &status,
		&rec.Unlocked, &price, &sold, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fraction.Record{}, fraction.ErrNotEnabled
	}
	if err != nil {
		return fraction.Record{}, fmt.Errorf("get fraction: %w", err)
	}
	rec.Status = fraction.Status(status)
	if rec.PricePerShare, err = parseNumeric(price); err != nil {
		return fraction.Record{}, err
	}
	if rec.PublicSold, err = parseNumeric(sold); err != nil {
		return fraction.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetShareBalance(ctx context.Context, fullDomain, holder string) (*big.Int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT balance FROM share_balances WHERE full_domain = $1 AND holder = $2`,
		registry.Normalize(fullDomain), holder)

	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get share balance: %w", err)
	}
	return parseNumeric(raw)
}

func (s *Store) SetShareBalance(ctx context.Context, fullDomain, holder string, amount *big.Int) error {
	key := registry.Normalize(fullDomain)

	if amount == nil || amount.Sign() == 0 {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM share_balances WHERE full_domain = $1 AND holder = $2`, key, holder)
		return err
	}

	// Enforce the holder cap only when tracking a new holder.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM share_balances WHERE full_domain = $1 AND holder = $2)`,
		key, holder).Scan(&exists); err != nil {
		return fmt.Errorf("check holder: %w", err)
	}
	if !exists {
		var count int
		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM share_balances WHERE full_domain = $1`, key).Scan(&count); err != nil {
			return fmt.Errorf("count holders: %w", err)
		}
		if count >= fraction.MaxHolders {
			return fraction.ErrHolderLimit
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_balances (full_domain, holder, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (full_domain, holder) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`,
		key, holder, amount.String(), time.Now().UTC())
	return err
}

func (s *Store) ListHolders(ctx context.Context, fullDomain string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = fraction.MaxHolders
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT holder FROM share_balances WHERE full_domain = $1 ORDER BY holder LIMIT $2`,
		registry.Normalize(fullDomain), limit)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var holder string
		if err := rows.Scan(&holder); err != nil {
			return nil, err
		}
		out = append(out, holder)
	}
	return out, rows.Err()
}

// OracleStore implementation --------------------------------------------------

func (s *Store) GetFallbackRate(ctx context.Context) (decimal.Decimal, time.Time, error) {
	row := s.db.QueryRowContext(ctx, `SELECT rate, as_of FROM oracle_fallback WHERE id = 1`)

	var (
		raw  string
		asOf time.Time
	)
	err := row.Scan(&raw, &asOf)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, time.Time{}, nil
	}
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("get fallback rate: %w", err)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse fallback rate: %w", err)
	}
	return rate, asOf, nil
}

func (s *Store) SetFallbackRate(ctx context.Context, rate decimal.Decimal, asOf time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_fallback (id, rate, as_of)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET rate = EXCLUDED.rate, as_of = EXCLUDED.as_of`,
		rate.String(), asOf)
	return err
}

// parseNumeric converts a NUMERIC column, which may carry a decimal point
// from the driver, into a big integer.
func parseNumeric(raw string) (*big.Int, error) {
	dec, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", raw, err)
	}
	return dec.BigInt(), nil
}
