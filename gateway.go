package main

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Tunes567/Quantum-Hub/smpp"
)

const deliveryEventBuffer = 256

// Gateway ties the dispatch, billing and event pipelines together.
type Gateway struct {
	Config      *Config
	LogManager  *LogManager
	Metrics     *Metrics
	Router      *Router
	Ledger      *Ledger
	Records     MessageRecordStore
	HTTPCarrier *HTTPCarrier
	Events      chan smpp.DeliveryEvent
	Sinks       []EventSink
	Publisher   Publisher
	Archive     ReceiptArchive

	DB          *DB
	MongoClient *mongo.Client
	AMPQClient  *AMPQClient
}

// GatewayDeps are the storage backends a gateway runs on.
type GatewayDeps struct {
	LedgerStore LedgerStore
	Records     MessageRecordStore
	Metrics     *Metrics
}

// NewGateway builds the carriers and router from cfg. Infrastructure
// clients (AMQP, Mongo, Postgres) are attached by the caller.
func NewGateway(cfg *Config, lm *LogManager, deps GatewayDeps) (*Gateway, error) {
	if deps.LedgerStore == nil || deps.Records == nil {
		return nil, errors.New("gateway: ledger store and record store are required")
	}

	gateway := &Gateway{
		Config:     cfg,
		LogManager: lm,
		Metrics:    deps.Metrics,
		Ledger:     NewLedger(deps.LedgerStore, cfg.DefaultRate, lm, deps.Metrics),
		Records:    deps.Records,
		Events:     make(chan smpp.DeliveryEvent, deliveryEventBuffer),
	}

	var smppCarrier, httpCarrier CarrierHandler
	if cfg.SMPP != nil {
		smppCarrier = NewSMPPCarrier(cfg.SMPP, cfg.SenderID, gateway.Events, lm)
	}
	if cfg.HTTP != nil {
		gateway.HTTPCarrier = NewHTTPCarrier(cfg.HTTP, lm)
		httpCarrier = gateway.HTTPCarrier
	}
	gateway.Router = NewRouter(cfg.GatewayType, smppCarrier, httpCarrier, cfg.CountryCode, cfg.LocalNumberLength, lm, deps.Metrics)

	lm.SendLog(lm.BuildLog(
		"Gateway.Init",
		"Gateway configured",
		logrus.InfoLevel,
		map[string]interface{}{
			"primary": string(cfg.GatewayType),
			"smpp":    cfg.SMPP != nil,
			"http":    cfg.HTTP != nil,
		},
	))
	return gateway, nil
}

// ReceiptArchive looks up archived delivery receipts.
type ReceiptArchive interface {
	Receipts(ctx context.Context, messageID string, limit int64) ([]smpp.DeliveryEvent, error)
}

// AddSink registers a delivery event consumer. Call before Start.
func (gateway *Gateway) AddSink(sink EventSink) {
	gateway.Sinks = append(gateway.Sinks, sink)
}

// Start runs the delivery event pipeline until ctx is done.
func (gateway *Gateway) Start(ctx context.Context) {
	go gateway.processDeliveryEvents(ctx)
}

// Close releases infrastructure clients.
func (gateway *Gateway) Close(ctx context.Context) {
	var lm = gateway.LogManager
	if gateway.AMPQClient != nil {
		if err := gateway.AMPQClient.Close(); err != nil {
			lm.SendLog(lm.BuildLog("Gateway.Close", "AMQP close failed", logrus.WarnLevel, nil, err))
		}
	}
	if gateway.MongoClient != nil {
		if err := gateway.MongoClient.Disconnect(ctx); err != nil {
			lm.SendLog(lm.BuildLog("Gateway.Close", "Mongo disconnect failed", logrus.WarnLevel, nil, err))
		}
	}
	if gateway.DB != nil {
		gateway.DB.Close()
	}
}
