package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

//go:generate mockgen -source=carrier.go -destination=mock_carrier_test.go -package=main

// GatewayType names an outbound gateway.
type GatewayType string

const (
	GatewaySMPP GatewayType = "smpp"
	GatewayHTTP GatewayType = "http"
)

func ParseGatewayType(s string) (GatewayType, error) {
	switch GatewayType(strings.ToLower(strings.TrimSpace(s))) {
	case GatewaySMPP:
		return GatewaySMPP, nil
	case GatewayHTTP:
		return GatewayHTTP, nil
	}
	return "", fmt.Errorf("unknown gateway type %q", s)
}

// CarrierHandler is one outbound gateway. Implementations never return an
// error past SendSMS: every failure is folded into the outcome.
type CarrierHandler interface {
	Name() GatewayType
	SendSMS(ctx context.Context, msg OutboundMessage) DispatchOutcome
}

// BaseCarrierHandler provides common functionality for carriers
type BaseCarrierHandler struct {
	name GatewayType
}

func (h *BaseCarrierHandler) Name() GatewayType {
	return h.name
}

// OutboundMessage is built per dispatch call. Numbers are already normalized.
type OutboundMessage struct {
	Account     string
	Numbers     []string
	Content     string
	SenderID    string
	ScheduledAt time.Time
	LogID       string
}

// DispatchOutcome is the single result of one dispatch call.
// ProviderMessageID does not imply confirmed handset delivery.
type DispatchOutcome struct {
	Success           bool
	Provider          GatewayType
	ProviderMessageID string
	Err               error
}

func (o DispatchOutcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func succeeded(provider GatewayType, messageID string) DispatchOutcome {
	return DispatchOutcome{Success: true, Provider: provider, ProviderMessageID: messageID}
}

func failed(provider GatewayType, err error) DispatchOutcome {
	return DispatchOutcome{Provider: provider, Err: err}
}
