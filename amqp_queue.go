package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/Tunes567/Quantum-Hub/smpp"
)

const deliveryEventsQueue = "delivery_events"

var (
	errAMQPNotReady = errors.New("amqp: not ready")
	errAMQPNack     = errors.New("amqp: publish not acknowledged")
)

// AMPQClient keeps a confirm-mode channel alive across broker restarts.
type AMPQClient struct {
	m               *sync.Mutex
	queues          []string
	logger          *log.Entry
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan bool
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	publish         publishFunc
	isReady         bool
}

// confirmation is the broker's answer to one publishing.
// *amqp.DeferredConfirmation satisfies it.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishFunc func(ctx context.Context, queueName string, msg amqp.Publishing) (confirmation, error)

const (
	reconnectDelay   = 5 * time.Second
	reInitDelay      = 2 * time.Second
	publishRetryWait = 500 * time.Millisecond
	publishTimeout   = 10 * time.Second
)

// Close will cleanly shut down the channel and connection.
func (client *AMPQClient) Close() error {
	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return fmt.Errorf("connection already closed")
	}
	close(client.done)
	err := client.channel.Close()
	if err != nil {
		return err
	}
	err = client.connection.Close()
	if err != nil {
		return err
	}

	client.isReady = false
	return nil
}

// NewMsgQueueClient starts connecting in the background and returns at once.
func NewMsgQueueClient(addr string, queues []string, logger *log.Entry) *AMPQClient {
	client := AMPQClient{
		m:      &sync.Mutex{},
		queues: queues,
		logger: logger,
		done:   make(chan bool),
	}

	go client.handleReconnect(addr)
	return &client
}

func (client *AMPQClient) handleReconnect(addr string) {
	for {
		client.m.Lock()
		client.isReady = false
		client.m.Unlock()

		client.logger.Debug("Attempting to connect")
		conn, err := client.connect(addr)
		if err != nil {
			client.logger.WithError(err).Warn("Failed to connect. Retrying...")
			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			break
		}
	}
}

func (client *AMPQClient) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, err
	}
	client.changeConnection(conn)
	client.logger.Info("Connected")
	return conn, nil
}

func (client *AMPQClient) handleReInit(conn *amqp.Connection) bool {
	for {
		client.m.Lock()
		client.isReady = false
		client.m.Unlock()

		err := client.init(conn)
		if err != nil {
			client.logger.WithError(err).Warn("Failed to initialize channel. Retrying...")
			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Warn("Connection closed. Reconnecting...")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Warn("Connection closed. Reconnecting...")
			return false
		case <-client.notifyChanClose:
			client.logger.Warn("Channel closed. Re-initializing...")
		}
	}
}

// init opens a confirm-mode channel and declares every queue.
func (client *AMPQClient) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	err = ch.Confirm(false)
	if err != nil {
		return err
	}

	for _, queue := range client.queues {
		_, err := ch.QueueDeclare(
			queue,
			true,  // Durable
			false, // Delete when unused
			false, // Exclusive
			false, // No-wait
			nil,   // Arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue '%s': %w", queue, err)
		}
		client.logger.WithField("queue", queue).Debug("Declared queue")
	}

	client.changeChannel(ch)
	client.m.Lock()
	client.isReady = true
	client.m.Unlock()
	return nil
}

func (client *AMPQClient) changeConnection(conn *amqp.Connection) {
	client.connection = conn
	client.notifyConnClose = make(chan *amqp.Error, 1)
	client.connection.NotifyClose(client.notifyConnClose)
}

func (client *AMPQClient) changeChannel(ch *amqp.Channel) {
	client.channel = ch
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.channel.NotifyClose(client.notifyChanClose)
	client.publish = func(ctx context.Context, queueName string, msg amqp.Publishing) (confirmation, error) {
		deferred, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queueName, false, false, msg)
		if err != nil {
			return nil, err
		}
		if deferred == nil {
			return nil, errAMQPNotReady
		}
		return deferred, nil
	}
}

// Publish sends data to queueName and waits for the broker confirm of that
// publishing. It retries while the client is reconnecting, until ctx is done.
// Concurrent callers each wait on their own confirmation.
func (client *AMPQClient) Publish(ctx context.Context, queueName string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var lastErr error
	for {
		confirm, err := client.UnsafePublish(ctx, queueName, data)
		if err == nil {
			acked, werr := confirm.WaitContext(ctx)
			if werr != nil {
				return fmt.Errorf("publish to %s: %w", queueName, werr)
			}
			if !acked {
				return fmt.Errorf("publish to %s: %w", queueName, errAMQPNack)
			}
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to %s: %w", queueName, lastErr)
		case <-time.After(publishRetryWait):
		}
	}
}

// UnsafePublish publishes a message and returns its pending confirmation
// without waiting for it.
func (client *AMPQClient) UnsafePublish(ctx context.Context, queueName string, data []byte) (confirmation, error) {
	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady || client.publish == nil {
		return nil, errAMQPNotReady
	}

	return client.publish(ctx, queueName, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         data,
	})
}

// Publisher is what the gateway needs from a broker client.
type Publisher interface {
	Publish(ctx context.Context, queueName string, data []byte) error
}

// AMQPEventSink forwards delivery events to the delivery_events queue.
type AMQPEventSink struct {
	publisher Publisher
}

func NewAMQPEventSink(publisher Publisher) *AMQPEventSink {
	return &AMQPEventSink{publisher: publisher}
}

func (s *AMQPEventSink) Name() string { return "amqp" }

func (s *AMQPEventSink) Handle(ctx context.Context, event smpp.DeliveryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, deliveryEventsQueue, body)
}
