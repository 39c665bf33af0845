package main

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Tunes567/Quantum-Hub/smpp"
)

const DeliveryEventsCollectionName = "delivery_events"

// archivedEvent is the document stored per inbound deliver_sm.
type archivedEvent struct {
	ID          primitive.ObjectID `bson:"_id"`
	ServerID    string             `bson:"server_id"`
	SystemID    string             `bson:"system_id"`
	Source      string             `bson:"source"`
	Destination string             `bson:"destination"`
	Text        string             `bson:"text"`
	DataCoding  string             `bson:"data_coding"`
	MessageID   string             `bson:"message_id,omitempty"`
	Stat        string             `bson:"stat,omitempty"`
	ErrCode     string             `bson:"err,omitempty"`
	IsReceipt   bool               `bson:"is_receipt"`
	ReceivedAt  time.Time          `bson:"received_at"`
	ArchivedAt  time.Time          `bson:"archived_at"`
}

// MongoEventSink archives delivery events to MongoDB.
type MongoEventSink struct {
	collection *mongo.Collection
	serverID   string
}

func NewMongoEventSink(client *mongo.Client, database, serverID string) *MongoEventSink {
	return &MongoEventSink{
		collection: client.Database(database).Collection(DeliveryEventsCollectionName),
		serverID:   serverID,
	}
}

func (s *MongoEventSink) Name() string { return "mongo" }

// EnsureIndexes creates the lookup indexes used for receipt correlation.
func (s *MongoEventSink) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "message_id", Value: 1}}},
		{Keys: bson.D{{Key: "received_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create delivery event indexes: %w", err)
	}
	return nil
}

func (s *MongoEventSink) Handle(ctx context.Context, event smpp.DeliveryEvent) error {
	_, err := s.collection.InsertOne(ctx, newArchivedEvent(s.serverID, event))
	if err != nil {
		return fmt.Errorf("failed to archive delivery event: %w", err)
	}
	return nil
}

// Receipts returns archived receipts for a provider message ID, newest first.
func (s *MongoEventSink) Receipts(ctx context.Context, messageID string, limit int64) ([]smpp.DeliveryEvent, error) {
	opts := options.Find().
		SetSort(bson.M{"received_at": -1}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, bson.M{"message_id": messageID, "is_receipt": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []archivedEvent
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode receipts: %w", err)
	}

	events := make([]smpp.DeliveryEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.event())
	}
	return events, nil
}

func newArchivedEvent(serverID string, event smpp.DeliveryEvent) archivedEvent {
	doc := archivedEvent{
		ID:          primitive.NewObjectID(),
		ServerID:    serverID,
		SystemID:    event.SystemID,
		Source:      event.Source,
		Destination: event.Destination,
		Text:        event.Text,
		DataCoding:  event.DataCoding,
		ReceivedAt:  event.ReceivedAt,
		ArchivedAt:  time.Now().UTC(),
	}
	if r := event.Receipt; r != nil {
		doc.IsReceipt = true
		doc.MessageID = r.MessageID
		doc.Stat = r.Stat
		doc.ErrCode = r.Err
	}
	return doc
}

func (d archivedEvent) event() smpp.DeliveryEvent {
	ev := smpp.DeliveryEvent{
		SystemID:    d.SystemID,
		Source:      d.Source,
		Destination: d.Destination,
		Text:        d.Text,
		DataCoding:  d.DataCoding,
		ReceivedAt:  d.ReceivedAt,
	}
	if d.IsReceipt {
		ev.Receipt = smpp.ParseReceipt(d.Text)
		if ev.Receipt == nil {
			ev.Receipt = &smpp.Receipt{MessageID: d.MessageID, Stat: d.Stat, Err: d.ErrCode}
		}
	}
	return ev
}
