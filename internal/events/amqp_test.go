package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu        sync.Mutex
	dials     int
	failDials int
	channels  []*fakeChannel
}

func (b *fakeBroker) dial() (amqpConnection, amqpChannel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.failDials > 0 {
		b.failDials--
		return nil, nil, errors.New("connection refused")
	}
	ch := &fakeChannel{}
	b.channels = append(b.channels, ch)
	return ch, ch, nil
}

func (b *fakeBroker) latest() *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[len(b.channels)-1]
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// fakeChannel stands in for both the connection and its channel.
type fakeChannel struct {
	mu        sync.Mutex
	closed    bool
	published []string
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.published = append(c.published, key)
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published...)
}

func TestAMQPPublisher_ReconnectsAfterBrokerRestart(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher(broker.dial, time.Millisecond)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	p.Publish(ctx, Event{Type: TableUpdated})
	first := broker.latest()
	assert.Equal(t, []string{string(TableUpdated)}, first.keys())

	// Broker restart: the channel dies and the next dial fails once.
	broker.mu.Lock()
	broker.failDials = 1
	broker.mu.Unlock()
	first.Close()

	p.Publish(ctx, Event{Type: OrderCreated})
	require.Eventually(t, func() bool { return broker.dialCount() >= 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.aliveLocked()
	}, time.Second, time.Millisecond)

	p.Publish(ctx, Event{Type: OrderUpdated})
	assert.Equal(t, []string{string(OrderUpdated)}, broker.latest().keys())
}

func TestAMQPPublisher_CloseStopsReconnecting(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher(broker.dial, time.Millisecond)
	require.NoError(t, err)

	broker.mu.Lock()
	broker.failDials = 1 << 20
	broker.mu.Unlock()
	broker.latest().Close()
	p.Publish(context.Background(), Event{Type: TableUpdated})

	require.NoError(t, p.Close())
	time.Sleep(10 * time.Millisecond)
	dials := broker.dialCount()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, dials, broker.dialCount())
}
