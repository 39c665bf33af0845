package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Tunes567/Quantum-Hub/smpp"
)

// EventSink receives inbound deliveries (MO messages and delivery receipts).
type EventSink interface {
	Name() string
	Handle(ctx context.Context, event smpp.DeliveryEvent) error
}

// processDeliveryEvents drains gateway.Events until ctx is done or the
// channel is closed.
func (gateway *Gateway) processDeliveryEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-gateway.Events:
			if !ok {
				return
			}
			gateway.handleDeliveryEvent(ctx, event)
		}
	}
}

func (gateway *Gateway) handleDeliveryEvent(ctx context.Context, event smpp.DeliveryEvent) {
	var lm = gateway.LogManager
	gateway.Metrics.ObserveDeliveryEvent(event)

	fields := map[string]interface{}{
		"systemID": event.SystemID,
		"from":     event.Source,
		"to":       event.Destination,
	}
	if event.Receipt != nil {
		fields["messageID"] = event.Receipt.MessageID
		fields["stat"] = event.Receipt.Stat
		lm.SendLog(lm.BuildLog("Events.Receipt", "Delivery receipt", logrus.InfoLevel, fields))
	} else {
		fields["content"] = lm.Content(event.Text)
		lm.SendLog(lm.BuildLog("Events.Deliver", "Inbound message", logrus.InfoLevel, fields))
	}

	for _, sink := range gateway.Sinks {
		if err := sink.Handle(ctx, event); err != nil {
			lm.SendLog(lm.BuildLog("Events.Sink", "Sink failed", logrus.ErrorLevel,
				map[string]interface{}{"sink": sink.Name(), "systemID": event.SystemID}, err))
		}
	}
}
