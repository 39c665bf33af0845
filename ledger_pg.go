package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const poolRowID = 1

// PGLedgerStore keeps balances in PostgreSQL. Every mutation is a conditional
// UPDATE, so the check and the write happen in one statement; multi-row
// changes run in a transaction.
type PGLedgerStore struct {
	pool *pgxpool.Pool
}

func NewPGLedgerStore(pool *pgxpool.Pool) *PGLedgerStore {
	return &PGLedgerStore{pool: pool}
}

// EnsurePool creates the singleton pool row with an initial balance.
func (s *PGLedgerStore) EnsurePool(ctx context.Context, initial decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_pool (id, balance, updated_at) VALUES ($1, $2, now()) ON CONFLICT (id) DO NOTHING`,
		poolRowID, initial.String())
	if err != nil {
		return fmt.Errorf("ensure ledger pool: %w", err)
	}
	return nil
}

func (s *PGLedgerStore) Account(ctx context.Context, id string) (LedgerAccount, error) {
	var a LedgerAccount
	var rate, balance, held string
	err := s.pool.QueryRow(ctx,
		`SELECT id, is_admin, rate::text, balance::text, held::text, api_key_hash, created_at, updated_at
		   FROM ledger_accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.IsAdmin, &rate, &balance, &held, &a.APIKeyHash, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerAccount{}, ErrAccountNotFound
	}
	if err != nil {
		return LedgerAccount{}, fmt.Errorf("load account %s: %w", id, err)
	}
	if a.Rate, err = decimal.NewFromString(rate); err != nil {
		return LedgerAccount{}, err
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return LedgerAccount{}, err
	}
	if a.Held, err = decimal.NewFromString(held); err != nil {
		return LedgerAccount{}, err
	}
	return a, nil
}

func (s *PGLedgerStore) CreateAccount(ctx context.Context, account LedgerAccount) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_accounts (id, is_admin, rate, balance, held, api_key_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, now(), now()) ON CONFLICT (id) DO NOTHING`,
		account.ID, account.IsAdmin, account.Rate.String(), account.Balance.String(), account.APIKeyHash)
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountExists
	}
	return nil
}

func (s *PGLedgerStore) Hold(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ledger_accounts SET held = held + $2, updated_at = now()
		  WHERE id = $1 AND balance - held >= $2`,
		id, amount.String())
	if err != nil {
		return fmt.Errorf("hold credits: %w", err)
	}
	return s.missOr(ctx, s.pool, tag, id, ErrInsufficientBalance)
}

func (s *PGLedgerStore) ReleaseHold(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ledger_accounts SET held = GREATEST(held - $2, 0), updated_at = now() WHERE id = $1`,
		id, amount.String())
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PGLedgerStore) Capture(ctx context.Context, id string, amount decimal.Decimal) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE ledger_accounts
			    SET balance = balance - $2, held = GREATEST(held - $2, 0), updated_at = now()
			  WHERE id = $1 AND balance >= $2`,
			id, amount.String())
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		if err := s.missOr(ctx, tx, tag, id, ErrInsufficientBalance); err != nil {
			return err
		}
		return s.addToPool(ctx, tx, amount)
	})
}

func (s *PGLedgerStore) Grant(ctx context.Context, id string, amount decimal.Decimal) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE ledger_accounts SET balance = balance + $2, updated_at = now() WHERE id = $1`,
			id, amount.String())
		if err != nil {
			return fmt.Errorf("grant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAccountNotFound
		}

		tag, err = tx.Exec(ctx,
			`UPDATE ledger_pool SET balance = balance - $2, updated_at = now() WHERE id = $1 AND balance >= $2`,
			poolRowID, amount.String())
		if err != nil {
			return fmt.Errorf("grant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientPool
		}
		return nil
	})
}

func (s *PGLedgerStore) TopUpPool(ctx context.Context, amount decimal.Decimal) error {
	return s.addToPool(ctx, s.pool, amount)
}

func (s *PGLedgerStore) PoolBalance(ctx context.Context) (decimal.Decimal, error) {
	var balance string
	err := s.pool.QueryRow(ctx, `SELECT balance::text FROM ledger_pool WHERE id = $1`, poolRowID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load pool balance: %w", err)
	}
	return decimal.NewFromString(balance)
}

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PGLedgerStore) addToPool(ctx context.Context, q execQuerier, amount decimal.Decimal) error {
	tag, err := q.Exec(ctx,
		`UPDATE ledger_pool SET balance = balance + $2, updated_at = now() WHERE id = $1`,
		poolRowID, amount.String())
	if err != nil {
		return fmt.Errorf("credit pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("ledger pool row is missing")
	}
	return nil
}

// missOr tells a failed condition apart from a missing account after an
// UPDATE touched no rows.
func (s *PGLedgerStore) missOr(ctx context.Context, q execQuerier, tag pgconn.CommandTag, id string, condErr error) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check account %s: %w", id, err)
	}
	if !exists {
		return ErrAccountNotFound
	}
	return condErr
}
