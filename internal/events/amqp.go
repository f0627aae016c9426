package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the fanout exchange events are published to.
const Exchange = "restaurant_events"

const (
	publishTimeout = 5 * time.Second
	reconnectEvery = 5 * time.Second
)

type amqpConnection interface {
	IsClosed() bool
	Close() error
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func() (amqpConnection, amqpChannel, error)

// AMQPPublisher publishes events as persistent JSON messages. When the
// broker goes away it reconnects in the background; events published
// meanwhile are logged and dropped.
type AMQPPublisher struct {
	dial           dialFunc
	reconnectEvery time.Duration

	mu           sync.Mutex
	conn         amqpConnection
	ch           amqpChannel
	reconnecting bool
	done         chan struct{}
	closed       bool
}

// DialAMQP connects and declares the exchange.
func DialAMQP(url string) (*AMQPPublisher, error) {
	return newAMQPPublisher(func() (amqpConnection, amqpChannel, error) {
		return dialExchange(url)
	}, reconnectEvery)
}

func newAMQPPublisher(dial dialFunc, every time.Duration) (*AMQPPublisher, error) {
	conn, ch, err := dial()
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{
		dial:           dial,
		reconnectEvery: every,
		conn:           conn,
		ch:             ch,
		done:           make(chan struct{}),
	}, nil
}

func dialExchange(url string) (amqpConnection, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		Exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		zap.L().Error("marshal event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.aliveLocked() {
		zap.L().Warn("amqp connection lost, event dropped", zap.String("type", string(e.Type)))
		p.startReconnectLocked()
		return
	}

	err = p.ch.PublishWithContext(ctx,
		Exchange,       // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    e.At,
			Type:         string(e.Type),
		})
	if err != nil {
		zap.L().Error("publish event", zap.String("type", string(e.Type)), zap.Error(err))
		if !p.aliveLocked() {
			p.startReconnectLocked()
		}
	}
}

func (p *AMQPPublisher) aliveLocked() bool {
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed()
}

func (p *AMQPPublisher) startReconnectLocked() {
	if p.reconnecting || p.closed {
		return
	}
	p.reconnecting = true
	go p.reconnect()
}

// reconnect dials every reconnectEvery until it succeeds or the publisher
// is closed.
func (p *AMQPPublisher) reconnect() {
	t := time.NewTicker(p.reconnectEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			conn, ch, err := p.dial()
			if err != nil {
				zap.L().Warn("amqp reconnect failed", zap.Error(err))
				continue
			}

			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				ch.Close()
				conn.Close()
				return
			}
			if p.conn != nil {
				p.conn.Close()
			}
			p.conn, p.ch = conn, ch
			p.reconnecting = false
			p.mu.Unlock()

			zap.L().Info("amqp reconnected", zap.String("exchange", Exchange))
			return
		case <-p.done:
			return
		}
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	if !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			p.conn.Close()
			return err
		}
	}
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}
