package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Tunes567/Quantum-Hub/smpp/coding"
)

type BillingStatus string

const (
	BillingSuccess BillingStatus = "success"
	BillingFailed  BillingStatus = "failed"
)

const dispatchResultsQueue = "dispatch_results"

// BillingResult is what the web layer shows for one dispatchAndBill call.
type BillingResult struct {
	Status   BillingStatus `json:"status"`
	Message  string        `json:"message"`
	Numbers  []string      `json:"numbers"`
	Sent     int           `json:"sent"`
	Failed   []string      `json:"failed,omitempty"`
	Rejected []string      `json:"rejected,omitempty"`
	Cost     string        `json:"cost"`
	LogID    string        `json:"log_id"`
}

// sendResult is the settled state of one destination.
type sendResult struct {
	Number   string
	Outcome  DispatchOutcome
	Billed   decimal.Decimal
	BillErr  error
	RecordID uint
}

// DispatchAndBill sends content to every valid number on behalf of account.
// The whole batch must be covered by the account's balance before anything
// is sent; afterwards each message is settled on its own, so only the
// successful ones are charged.
func (gateway *Gateway) DispatchAndBill(ctx context.Context, accountID string, numbers []string, content string) BillingResult {
	var lm = gateway.LogManager
	cfg := gateway.Config

	result := BillingResult{
		Status:  BillingFailed,
		Numbers: numbers,
		Cost:    decimal.Zero.StringFixed(2),
		LogID:   uuid.NewString(),
	}

	if strings.TrimSpace(content) == "" {
		content = cfg.MessageTemplate
	}
	if strings.TrimSpace(content) == "" {
		result.Message = "Message content is required"
		return result
	}
	if cfg.MaxBulkNumbers > 0 && len(numbers) > cfg.MaxBulkNumbers {
		result.Message = fmt.Sprintf("Too many numbers: %d (limit %d)", len(numbers), cfg.MaxBulkNumbers)
		return result
	}

	valid, rejected := NormalizeNumbers(numbers, cfg.CountryCode, cfg.LocalNumberLength)
	result.Rejected = rejected
	if len(valid) == 0 {
		result.Message = "No valid phone numbers provided"
		return result
	}

	cost, err := gateway.Ledger.Quote(ctx, accountID)
	if err != nil {
		result.Message = quoteFailureMessage(err)
		return result
	}
	total := cost.Mul(decimal.NewFromInt(int64(len(valid))))

	reservation, err := gateway.Ledger.Authorize(ctx, accountID, total)
	if err != nil {
		gateway.Metrics.ObserveAdmission("rejected")
		lm.SendLog(lm.BuildLog(
			"Billing.Admission",
			"Batch rejected",
			logrus.InfoLevel,
			map[string]interface{}{
				"logID":   result.LogID,
				"account": accountID,
				"numbers": len(valid),
				"total":   total.String(),
			}, err,
		))
		if errors.Is(err, ErrInsufficientBalance) {
			result.Message = fmt.Sprintf("Insufficient credits: %d message(s) cost %s", len(valid), total.StringFixed(2))
		} else {
			result.Message = quoteFailureMessage(err)
		}
		return result
	}
	gateway.Metrics.ObserveAdmission("admitted")
	defer func() {
		if err := gateway.Ledger.Release(context.WithoutCancel(ctx), reservation); err != nil {
			lm.SendLog(lm.BuildLog("Billing.Release", "Releasing reservation failed", logrus.ErrorLevel,
				map[string]interface{}{"logID": result.LogID, "account": accountID}, err))
		}
	}()

	results := make([]sendResult, len(valid))
	var g errgroup.Group
	g.SetLimit(cfg.BulkConcurrency)
	for i, number := range valid {
		i, number := i, number
		g.Go(func() error {
			results[i] = gateway.sendOne(ctx, accountID, number, content, cost, reservation, result.LogID)
			return nil
		})
	}
	_ = g.Wait()

	return gateway.summarize(result, results)
}

func (gateway *Gateway) sendOne(ctx context.Context, accountID, number, content string, cost decimal.Decimal, res *Reservation, logID string) sendResult {
	var lm = gateway.LogManager
	settleCtx := context.WithoutCancel(ctx)
	encoding, segments := coding.Info(content)

	rec := &MessageRecord{
		AccountID:     accountID,
		Numbers:       number,
		Content:       content,
		Encoding:      encoding.String(),
		TotalSegments: segments,
		LogID:         logID,
		ServerID:      gateway.Config.ServerID,
	}
	if err := gateway.Records.Create(settleCtx, rec); err != nil {
		lm.SendLog(lm.BuildLog("Billing.Record", "InsertError", logrus.ErrorLevel,
			map[string]interface{}{"logID": logID, "account": accountID}, err))
		if _, serr := gateway.Ledger.Settle(settleCtx, res, cost, false); serr != nil {
			lm.SendLog(lm.BuildLog("Billing.Settle", "Settle failed", logrus.ErrorLevel,
				map[string]interface{}{"logID": logID, "account": accountID}, serr))
		}
		return sendResult{Number: number, Outcome: failed("", fmt.Errorf("could not record message: %w", err))}
	}

	outcome := gateway.Router.Dispatch(ctx, OutboundMessage{
		Account:  accountID,
		Numbers:  []string{number},
		Content:  content,
		SenderID: gateway.Config.SenderID,
		LogID:    logID,
	})

	billed, billErr := gateway.Ledger.Settle(settleCtx, res, cost, outcome.Success)

	final := MessageResult{
		Status:            MessageFailed,
		Provider:          outcome.Provider,
		ProviderMessageID: outcome.ProviderMessageID,
		Cost:              billed,
		Error:             outcome.Reason(),
	}
	switch {
	case outcome.Success && billErr == nil:
		final.Status = MessageSuccess
	case outcome.Success:
		final.Error = "billing: " + billErr.Error()
	}
	if err := gateway.Records.Finalize(settleCtx, rec.ID, final); err != nil {
		lm.SendLog(lm.BuildLog("Billing.Record", "FinalizeError", logrus.ErrorLevel,
			map[string]interface{}{"logID": logID, "recordID": rec.ID}, err))
	}

	level := logrus.InfoLevel
	if !outcome.Success {
		level = logrus.WarnLevel
	}
	lm.SendLog(lm.BuildLog(
		"Billing.Dispatch",
		"Message settled",
		level,
		map[string]interface{}{
			"logID":    logID,
			"account":  accountID,
			"to":       number,
			"provider": string(outcome.Provider),
			"success":  outcome.Success,
			"billed":   billed.String(),
			"content":  lm.Content(content),
		}, outcome.Err,
	))

	sr := sendResult{Number: number, Outcome: outcome, Billed: billed, BillErr: billErr, RecordID: rec.ID}
	gateway.publishResult(settleCtx, accountID, logID, sr)
	return sr
}

func (gateway *Gateway) summarize(result BillingResult, results []sendResult) BillingResult {
	billed := decimal.Zero
	var lastErr string
	for _, r := range results {
		billed = billed.Add(r.Billed)
		if r.Outcome.Success {
			result.Sent++
			continue
		}
		result.Failed = append(result.Failed, r.Number)
		if reason := r.Outcome.Reason(); reason != "" {
			lastErr = reason
		}
	}
	result.Cost = billed.StringFixed(2)

	switch {
	case len(result.Failed) == 0:
		result.Status = BillingSuccess
		result.Message = fmt.Sprintf("Successfully sent %d messages", result.Sent)
	case result.Sent > 0:
		result.Status = BillingSuccess
		result.Message = fmt.Sprintf("Sent %d messages. Failed to send to: %s", result.Sent, strings.Join(result.Failed, ", "))
	default:
		result.Message = lastErr
		if result.Message == "" {
			result.Message = "Failed to send message"
		}
	}
	if len(result.Rejected) > 0 {
		result.Message += fmt.Sprintf(". Invalid numbers skipped: %s", strings.Join(result.Rejected, ", "))
	}
	return result
}

func quoteFailureMessage(err error) string {
	if errors.Is(err, ErrAccountNotFound) {
		return "Account not found"
	}
	return "Billing unavailable: " + err.Error()
}

type dispatchResultEvent struct {
	LogID             string `json:"log_id"`
	Account           string `json:"account"`
	Number            string `json:"number"`
	RecordID          uint   `json:"record_id"`
	Success           bool   `json:"success"`
	Provider          string `json:"provider"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Billed            string `json:"billed"`
	Error             string `json:"error,omitempty"`
}

func (gateway *Gateway) publishResult(ctx context.Context, accountID, logID string, r sendResult) {
	if gateway.Publisher == nil {
		return
	}
	body, err := json.Marshal(dispatchResultEvent{
		LogID:             logID,
		Account:           accountID,
		Number:            r.Number,
		RecordID:          r.RecordID,
		Success:           r.Outcome.Success,
		Provider:          string(r.Outcome.Provider),
		ProviderMessageID: r.Outcome.ProviderMessageID,
		Billed:            r.Billed.String(),
		Error:             r.Outcome.Reason(),
	})
	if err != nil {
		return
	}
	if err := gateway.Publisher.Publish(ctx, dispatchResultsQueue, body); err != nil {
		gateway.LogManager.SendLog(gateway.LogManager.BuildLog("Billing.Publish", "PublishError", logrus.WarnLevel,
			map[string]interface{}{"logID": logID}, err))
	}
}
