package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSuccess MessageStatus = "success"
	MessageFailed  MessageStatus = "failed"
)

var ErrRecordFinalized = errors.New("message record already finalized")

// MessageRecord is one dispatch attempt to one destination set. It is created
// pending and finalized exactly once; Cost stays zero unless Status is success.
type MessageRecord struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	AccountID         string          `gorm:"index;size:64;not null" json:"account_id"`
	Numbers           string          `json:"numbers"`
	Content           string          `json:"content"`
	Status            MessageStatus   `gorm:"index;size:16;not null" json:"status"`
	Provider          string          `gorm:"size:16" json:"provider,omitempty"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	Cost              decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"cost"`
	Error             string          `json:"error,omitempty"`
	Encoding          string          `gorm:"size:16" json:"encoding,omitempty"`
	TotalSegments     int             `json:"total_segments"`
	LogID             string          `gorm:"index;size:36" json:"log_id"`
	ServerID          string          `json:"server_id"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (MessageRecord) TableName() string { return "message_records" }

// MessageResult is the final state written to a record.
type MessageResult struct {
	Status            MessageStatus
	Provider          GatewayType
	ProviderMessageID string
	Cost              decimal.Decimal
	Error             string
}

func (r MessageResult) normalized() (MessageResult, error) {
	if r.Status != MessageSuccess && r.Status != MessageFailed {
		return r, fmt.Errorf("invalid final status %q", r.Status)
	}
	if r.Status != MessageSuccess {
		r.Cost = decimal.Zero
	}
	return r, nil
}

// UsageSummary aggregates an account's records since a point in time.
type UsageSummary struct {
	AccountID string          `json:"account_id"`
	Since     time.Time       `json:"since"`
	Success   int64           `json:"success"`
	Failed    int64           `json:"failed"`
	Pending   int64           `json:"pending"`
	Spent     decimal.Decimal `json:"spent"`
}

type MessageRecordStore interface {
	Create(ctx context.Context, rec *MessageRecord) error
	Finalize(ctx context.Context, id uint, result MessageResult) error
	Usage(ctx context.Context, accountID string, since time.Time) (UsageSummary, error)
	// List returns up to limit records, newest first. An empty accountID lists
	// every account.
	List(ctx context.Context, accountID string, limit int) ([]MessageRecord, error)
}

// GormMessageRecordStore persists records in PostgreSQL through gorm.
type GormMessageRecordStore struct {
	db *gorm.DB
}

func NewGormMessageRecordStore(db *gorm.DB) *GormMessageRecordStore {
	return &GormMessageRecordStore{db: db}
}

func (s *GormMessageRecordStore) Create(ctx context.Context, rec *MessageRecord) error {
	rec.Status = MessagePending
	rec.Cost = decimal.Zero
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert message record: %w", err)
	}
	return nil
}

func (s *GormMessageRecordStore) Finalize(ctx context.Context, id uint, result MessageResult) error {
	result, err := result.normalized()
	if err != nil {
		return err
	}
	tx := s.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("id = ? AND status = ?", id, MessagePending).
		Updates(map[string]interface{}{
			"status":              result.Status,
			"provider":            string(result.Provider),
			"provider_message_id": result.ProviderMessageID,
			"cost":                result.Cost,
			"error":               result.Error,
		})
	if tx.Error != nil {
		return fmt.Errorf("failed to finalize message record %d: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrRecordFinalized
	}
	return nil
}

func (s *GormMessageRecordStore) Usage(ctx context.Context, accountID string, since time.Time) (UsageSummary, error) {
	var rows []struct {
		Status MessageStatus
		Count  int64
		Spent  string
	}
	err := s.db.WithContext(ctx).Model(&MessageRecord{}).
		Select("status, count(*) AS count, coalesce(sum(cost), 0)::text AS spent").
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return UsageSummary{}, fmt.Errorf("failed to load usage: %w", err)
	}

	summary := UsageSummary{AccountID: accountID, Since: since, Spent: decimal.Zero}
	for _, row := range rows {
		switch row.Status {
		case MessageSuccess:
			summary.Success = row.Count
			spent, err := decimal.NewFromString(row.Spent)
			if err != nil {
				return UsageSummary{}, err
			}
			summary.Spent = spent
		case MessageFailed:
			summary.Failed = row.Count
		case MessagePending:
			summary.Pending = row.Count
		}
	}
	return summary, nil
}

func (s *GormMessageRecordStore) List(ctx context.Context, accountID string, limit int) ([]MessageRecord, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	var records []MessageRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list message records: %w", err)
	}
	return records, nil
}

// MemoryMessageRecordStore keeps records in process, for the memory backend.
type MemoryMessageRecordStore struct {
	mu      sync.Mutex
	nextID  uint
	records map[uint]*MessageRecord
}

func NewMemoryMessageRecordStore() *MemoryMessageRecordStore {
	return &MemoryMessageRecordStore{records: make(map[uint]*MessageRecord)}
}

func (s *MemoryMessageRecordStore) Create(_ context.Context, rec *MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now()
	rec.ID = s.nextID
	rec.Status = MessagePending
	rec.Cost = decimal.Zero
	rec.CreatedAt, rec.UpdatedAt = now, now
	stored := *rec
	s.records[rec.ID] = &stored
	return nil
}

func (s *MemoryMessageRecordStore) Finalize(_ context.Context, id uint, result MessageResult) error {
	result, err := result.normalized()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != MessagePending {
		return ErrRecordFinalized
	}
	rec.Status = result.Status
	rec.Provider = string(result.Provider)
	rec.ProviderMessageID = result.ProviderMessageID
	rec.Cost = result.Cost
	rec.Error = result.Error
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryMessageRecordStore) Usage(_ context.Context, accountID string, since time.Time) (UsageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := UsageSummary{AccountID: accountID, Since: since, Spent: decimal.Zero}
	for _, rec := range s.records {
		if rec.AccountID != accountID || rec.CreatedAt.Before(since) {
			continue
		}
		switch rec.Status {
		case MessageSuccess:
			summary.Success++
			summary.Spent = summary.Spent.Add(rec.Cost)
		case MessageFailed:
			summary.Failed++
		case MessagePending:
			summary.Pending++
		}
	}
	return summary, nil
}

func (s *MemoryMessageRecordStore) List(_ context.Context, accountID string, limit int) ([]MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MessageRecord, 0)
	for id := s.nextID; id > 0 && len(out) < limit; id-- {
		rec, ok := s.records[id]
		if !ok || (accountID != "" && rec.AccountID != accountID) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Records returns a copy of every record for one account, oldest first.
func (s *MemoryMessageRecordStore) Records(accountID string) []MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MessageRecord, 0)
	for id := uint(1); id <= s.nextID; id++ {
		if rec, ok := s.records[id]; ok && rec.AccountID == accountID {
			out = append(out, *rec)
		}
	}
	return out
}
