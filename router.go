package main

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Tunes567/Quantum-Hub/smpp/coding"
)

var (
	ErrNoNumbers       = errors.New("no valid phone numbers provided")
	ErrNoGatewayRouted = errors.New("no gateway available")
)

// Router picks the gateway for a dispatch and falls back from SMPP to HTTP
// exactly once. It only talks to the wire; billing and records are the
// caller's job.
type Router struct {
	primary     GatewayType
	smpp        CarrierHandler
	http        CarrierHandler
	countryCode string
	localLength int
	lm          *LogManager
	metrics     *Metrics
}

func NewRouter(primary GatewayType, smppCarrier, httpCarrier CarrierHandler, countryCode string, localLength int, lm *LogManager, metrics *Metrics) *Router {
	return &Router{
		primary:     primary,
		smpp:        smppCarrier,
		http:        httpCarrier,
		countryCode: countryCode,
		localLength: localLength,
		lm:          lm,
		metrics:     metrics,
	}
}

// route lists the carriers to try in order.
func (router *Router) route() []CarrierHandler {
	var carriers []CarrierHandler
	if router.primary == GatewaySMPP && router.smpp != nil {
		carriers = append(carriers, router.smpp)
	}
	if router.http != nil {
		carriers = append(carriers, router.http)
	}
	return carriers
}

// Dispatch normalizes the numbers and sends the message, returning the first
// success or the last concrete failure.
func (router *Router) Dispatch(ctx context.Context, msg OutboundMessage) DispatchOutcome {
	numbers := make([]string, 0, len(msg.Numbers))
	for _, n := range msg.Numbers {
		formatted, err := FormatNumber(n, router.countryCode, router.localLength)
		if err != nil {
			return failed(router.primary, err)
		}
		numbers = append(numbers, formatted)
	}
	if len(numbers) == 0 {
		return failed(router.primary, ErrNoNumbers)
	}
	msg.Numbers = numbers

	carriers := router.route()
	if len(carriers) == 0 {
		return failed(router.primary, ErrNoGatewayRouted)
	}

	var outcome DispatchOutcome
	for i, carrier := range carriers {
		outcome = carrier.SendSMS(ctx, msg)
		router.metrics.ObserveDispatch(outcome)
		if outcome.Success {
			return outcome
		}

		var encErr *coding.EncodingError
		if errors.As(outcome.Err, &encErr) {
			// the other gateway would face the same content
			return outcome
		}
		if i == len(carriers)-1 || ctx.Err() != nil {
			break
		}

		router.metrics.ObserveFallback(carrier.Name())
		router.lm.SendLog(router.lm.BuildLog(
			"Router.Dispatch",
			"Primary gateway failed, falling back",
			logrus.WarnLevel,
			map[string]interface{}{
				"logID":    msg.LogID,
				"account":  msg.Account,
				"failed":   string(carrier.Name()),
				"fallback": string(carriers[i+1].Name()),
			}, outcome.Err,
		))
	}
	return outcome
}
