package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tunes567/Quantum-Hub/smpp"
	"github.com/Tunes567/Quantum-Hub/smpp/coding"
)

//go:generate mockgen -source=carrier_smpp.go -destination=mock_smpp_session_test.go -package=main

const sessionCleanupTimeout = 10 * time.Second

// SMPPSession is the part of *smpp.Session the carrier drives.
type SMPPSession interface {
	Connect(ctx context.Context) error
	Bind(ctx context.Context) error
	Submit(ctx context.Context, destination string, parts []coding.EncodedPart) (string, error)
	Unbind(ctx context.Context)
	Close()
}

// SMPPCarrier sends each dispatch over a fresh transceiver session.
type SMPPCarrier struct {
	BaseCarrierHandler
	cfg        smpp.Config
	lm         *LogManager
	newSession func(sourceAddr string) SMPPSession
}

func NewSMPPCarrier(cfg *SMPPConfig, senderID string, events chan<- smpp.DeliveryEvent, lm *LogManager) *SMPPCarrier {
	h := &SMPPCarrier{
		BaseCarrierHandler: BaseCarrierHandler{name: GatewaySMPP},
		cfg: smpp.Config{
			Credentials:     cfg.Credentials,
			SystemTypes:     cfg.SystemTypes,
			SourceAddr:      senderID,
			ProbeTimeout:    cfg.ProbeTimeout,
			ExchangeTimeout: cfg.ExchangeTimeout,
			PartDelay:       cfg.PartDelay,
			Events:          events,
		},
		lm: lm,
	}
	h.newSession = func(sourceAddr string) SMPPSession {
		sc := h.cfg
		if sourceAddr != "" {
			sc.SourceAddr = sourceAddr
		}
		return smpp.NewSession(sc, lm.Entry("Carrier.SMPP"))
	}
	return h
}

// SendSMS encodes once, then connects, binds and submits to every number.
// Unbind and Close run on every exit path, also after cancellation.
func (h *SMPPCarrier) SendSMS(ctx context.Context, msg OutboundMessage) DispatchOutcome {
	parts, err := coding.Encode(msg.Content)
	if err != nil {
		return failed(GatewaySMPP, err)
	}

	session := h.newSession(msg.SenderID)
	defer func() {
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCleanupTimeout)
		defer cancel()
		session.Unbind(cleanup)
		session.Close()
	}()

	if err := session.Connect(ctx); err != nil {
		h.logFailure(msg, "Connect failed", err)
		return failed(GatewaySMPP, err)
	}
	if err := session.Bind(ctx); err != nil {
		h.logFailure(msg, "Bind failed", err)
		return failed(GatewaySMPP, err)
	}

	ids := make([]string, 0, len(msg.Numbers))
	for _, number := range msg.Numbers {
		id, err := session.Submit(ctx, number, parts)
		if err != nil {
			h.logFailure(msg, "Submit failed", err)
			return failed(GatewaySMPP, err)
		}
		if id != "" {
			ids = append(ids, id)
		}
	}

	h.lm.SendLog(h.lm.BuildLog(
		"Carrier.SMPP",
		"Message submitted",
		logrus.InfoLevel,
		map[string]interface{}{
			"logID":    msg.LogID,
			"numbers":  len(msg.Numbers),
			"parts":    len(parts),
			"encoding": parts[0].DataCoding.String(),
		},
	))
	return succeeded(GatewaySMPP, strings.Join(ids, ","))
}

func (h *SMPPCarrier) logFailure(msg OutboundMessage, message string, err error) {
	fields := map[string]interface{}{"logID": msg.LogID}
	var rejected *smpp.BindRejectedError
	var submit *smpp.SubmitFailedError
	switch {
	case errors.As(err, &rejected):
		fields["status"] = rejected.Status.String()
	case errors.As(err, &submit):
		fields["status"] = submit.Status.String()
		fields["part"] = submit.Part
	}
	h.lm.SendLog(h.lm.BuildLog("Carrier.SMPP", message, logrus.WarnLevel, fields, err))
}
