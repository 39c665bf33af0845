package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientBalance = errors.New("insufficient credits")
	ErrInsufficientPool    = errors.New("insufficient system balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrBillingDiscrepancy  = errors.New("billing discrepancy")
	ErrReservationExceeded = errors.New("settlement exceeds reservation")
)

// LedgerAccount is a user's credit position. Held is the part of Balance
// reserved by sends that have not been settled yet.
type LedgerAccount struct {
	ID        string          `gorm:"primaryKey;size:64" json:"id"`
	IsAdmin   bool            `gorm:"not null;default:false" json:"is_admin"`
	Rate      decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"rate"`
	Balance   decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0" json:"balance"`
	Held      decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0" json:"held"`
	// APIKeyHash is the SHA-256 of the account's API key. Empty means the
	// account cannot authenticate on its own.
	APIKeyHash string    `gorm:"size:64;not null;default:''" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (LedgerAccount) TableName() string { return "ledger_accounts" }

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func newAPIKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (a LedgerAccount) CheckAPIKey(key string) bool {
	if a.APIKeyHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(key)), []byte(a.APIKeyHash)) == 1
}

func (a LedgerAccount) Available() decimal.Decimal {
	return a.Balance.Sub(a.Held)
}

// LedgerPool is the singleton system pool row.
type LedgerPool struct {
	ID        int             `gorm:"primaryKey"`
	Balance   decimal.Decimal `gorm:"type:numeric(16,4);not null;default:0"`
	UpdatedAt time.Time
}

func (LedgerPool) TableName() string { return "ledger_pool" }

// LedgerStore applies every balance mutation atomically. Implementations
// must never let Balance drop below zero or Held exceed Balance through Hold.
type LedgerStore interface {
	Account(ctx context.Context, id string) (LedgerAccount, error)
	CreateAccount(ctx context.Context, account LedgerAccount) error
	// Hold reserves amount if Balance-Held covers it.
	Hold(ctx context.Context, id string, amount decimal.Decimal) error
	// ReleaseHold returns reserved credit without touching Balance.
	ReleaseHold(ctx context.Context, id string, amount decimal.Decimal) error
	// Capture debits amount from Balance and Held and credits the pool.
	Capture(ctx context.Context, id string, amount decimal.Decimal) error
	// Grant moves amount from the pool to the account.
	Grant(ctx context.Context, id string, amount decimal.Decimal) error
	TopUpPool(ctx context.Context, amount decimal.Decimal) error
	PoolBalance(ctx context.Context) (decimal.Decimal, error)
}

// Ledger owns pricing and the reserve, settle, release flow on top of a store.
type Ledger struct {
	store       LedgerStore
	defaultRate decimal.Decimal
	lm          *LogManager
	metrics     *Metrics
}

func NewLedger(store LedgerStore, defaultRate decimal.Decimal, lm *LogManager, metrics *Metrics) *Ledger {
	return &Ledger{store: store, defaultRate: defaultRate, lm: lm, metrics: metrics}
}

// Reservation tracks the unsettled part of an authorization. Settle may be
// called from several goroutines for the same reservation.
type Reservation struct {
	AccountID string

	mu        sync.Mutex
	remaining decimal.Decimal
}

func (r *Reservation) Remaining() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

func (r *Reservation) take(amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if amount.GreaterThan(r.remaining) {
		return fmt.Errorf("%w: %s > %s", ErrReservationExceeded, amount, r.remaining)
	}
	r.remaining = r.remaining.Sub(amount)
	return nil
}

// restore gives back an amount whose hold is still in the store, so Release
// returns it later.
func (r *Reservation) restore(amount decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = r.remaining.Add(amount)
}

func (r *Reservation) drain() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	left := r.remaining
	r.remaining = decimal.Zero
	return left
}

// Quote returns the per-message cost for an account. Admins always pay the
// default rate.
func (l *Ledger) Quote(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := l.store.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if account.IsAdmin || !account.Rate.IsPositive() {
		return l.defaultRate, nil
	}
	return account.Rate, nil
}

// Authorize reserves amount without debiting it. It fails with
// ErrInsufficientBalance when the unreserved balance does not cover amount.
func (l *Ledger) Authorize(ctx context.Context, accountID string, amount decimal.Decimal) (*Reservation, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if err := l.store.Hold(ctx, accountID, amount); err != nil {
		return nil, err
	}
	return &Reservation{AccountID: accountID, remaining: amount}, nil
}

// Settle closes cost of the reservation. A successful send is debited and
// credited to the pool; a failed one only releases its hold. The amount
// actually billed is returned.
func (l *Ledger) Settle(ctx context.Context, res *Reservation, cost decimal.Decimal, success bool) (decimal.Decimal, error) {
	if err := res.take(cost); err != nil {
		return decimal.Zero, err
	}

	if !success {
		if err := l.store.ReleaseHold(ctx, res.AccountID, cost); err != nil {
			res.restore(cost)
			l.lm.SendLog(l.lm.BuildLog(
				"Ledger.Settle",
				"Releasing hold failed",
				logrus.ErrorLevel,
				map[string]interface{}{"account": res.AccountID, "amount": cost.String()}, err,
			))
			return decimal.Zero, err
		}
		return decimal.Zero, nil
	}

	if err := l.store.Capture(ctx, res.AccountID, cost); err != nil {
		// the gateway already accepted the message; nothing was debited
		l.metrics.ObserveDiscrepancy()
		l.lm.SendLog(l.lm.BuildLog(
			"Ledger.Settle",
			"Billing discrepancy: delivered message could not be charged",
			logrus.ErrorLevel,
			map[string]interface{}{"account": res.AccountID, "amount": cost.String()}, err,
		))
		if rerr := l.store.ReleaseHold(ctx, res.AccountID, cost); rerr != nil {
			res.restore(cost)
			l.lm.SendLog(l.lm.BuildLog(
				"Ledger.Settle",
				"Releasing hold after discrepancy failed",
				logrus.ErrorLevel,
				map[string]interface{}{"account": res.AccountID}, rerr,
			))
		}
		return decimal.Zero, fmt.Errorf("%w: account %s: %v", ErrBillingDiscrepancy, res.AccountID, err)
	}

	l.metrics.ObserveBilled(cost)
	return cost, nil
}

// Release returns whatever is left of the reservation. On failure the amount
// stays on the reservation so a later Release can retry.
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	left := res.drain()
	if left.IsZero() {
		return nil
	}
	if err := l.store.ReleaseHold(ctx, res.AccountID, left); err != nil {
		res.restore(left)
		return err
	}
	return nil
}

// GrantCredits moves amount from the system pool to an account.
func (l *Ledger) GrantCredits(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := l.store.Grant(ctx, accountID, amount); err != nil {
		return err
	}
	l.lm.SendLog(l.lm.BuildLog(
		"Ledger.Grant",
		"Credits granted",
		logrus.InfoLevel,
		map[string]interface{}{"account": accountID, "amount": amount.String()},
	))
	return nil
}

// AddSystemCredits tops up the system pool.
func (l *Ledger) AddSystemCredits(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := l.store.TopUpPool(ctx, amount); err != nil {
		return err
	}
	l.lm.SendLog(l.lm.BuildLog(
		"Ledger.TopUp",
		"System credits added",
		logrus.InfoLevel,
		map[string]interface{}{"amount": amount.String()},
	))
	return nil
}

func (l *Ledger) Account(ctx context.Context, accountID string) (LedgerAccount, error) {
	return l.store.Account(ctx, accountID)
}

func (l *Ledger) PoolBalance(ctx context.Context) (decimal.Decimal, error) {
	return l.store.PoolBalance(ctx)
}

// CreateAccount opens an empty account and returns its API key. Only the hash
// is stored, so the key cannot be shown again. Credit arrives through GrantCredits.
func (l *Ledger) CreateAccount(ctx context.Context, account LedgerAccount) (string, error) {
	apiKey := newAPIKey()
	account.Balance = decimal.Zero
	account.Held = decimal.Zero
	account.APIKeyHash = HashAPIKey(apiKey)
	if err := l.store.CreateAccount(ctx, account); err != nil {
		return "", err
	}
	l.lm.SendLog(l.lm.BuildLog(
		"Ledger.Account",
		"Account created",
		logrus.InfoLevel,
		map[string]interface{}{"account": account.ID, "admin": account.IsAdmin},
	))
	return apiKey, nil
}

// EnsureAccount creates the account unless it already exists.
func (l *Ledger) EnsureAccount(ctx context.Context, account LedgerAccount) error {
	err := l.store.CreateAccount(ctx, account)
	if errors.Is(err, ErrAccountExists) {
		return nil
	}
	return err
}
