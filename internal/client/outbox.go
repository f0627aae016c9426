package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const defaultMaxRetries = 5

type OpKind string

const (
	OpTableStatus OpKind = "table_status"
	OpOrderStatus OpKind = "order_status"
	OpItemStatus  OpKind = "item_status"
	OpCloseTable  OpKind = "close_table"
	OpCreateOrder OpKind = "create_order"
)

// Op is a mutation waiting to be sent. OrderID of an OpCreateOrder is the
// negative placeholder id the order carries in the local store.
type Op struct {
	ID            uuid.UUID      `json:"id"`
	Kind          OpKind         `json:"kind"`
	TableID       int64          `json:"tableId,omitempty"`
	OrderID       int64          `json:"orderId,omitempty"`
	ItemID        int64          `json:"itemId,omitempty"`
	Status        string         `json:"status,omitempty"`
	PaymentMethod string         `json:"paymentMethod,omitempty"`
	Items         []NewOrderItem `json:"items,omitempty"`
	QueuedAt      time.Time      `json:"queuedAt"`
}

// Dropped is an op the server refused.
type Dropped struct {
	Op  Op
	Err error
}

// FlushResult reports one replay pass.
type FlushResult struct {
	Sent    int
	Dropped []Dropped
	// Remaining ops stay queued for the next flush.
	Remaining int
}

// Outbox queues mutations in the order they were made.
type Outbox struct {
	mu  sync.Mutex
	ops []Op

	newBackOff func() backoff.BackOff
}

// NewOutbox creates an empty outbox. newBackOff builds the retry policy
// for each op; nil selects exponential backoff with five retries.
func NewOutbox(newBackOff func() backoff.BackOff) *Outbox {
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return backoff.WithMaxRetries(b, defaultMaxRetries)
		}
	}
	return &Outbox{newBackOff: newBackOff}
}

// Enqueue stamps and appends op.
func (o *Outbox) Enqueue(op Op) Op {
	o.mu.Lock()
	defer o.mu.Unlock()
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = time.Now()
	}
	o.ops = append(o.ops, op)
	return op
}

// Restore appends ops saved from an earlier Pending call.
func (o *Outbox) Restore(ops []Op) {
	for _, op := range ops {
		o.Enqueue(op)
	}
}

// Pending returns a copy of the queue.
func (o *Outbox) Pending() []Op {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Op, len(o.ops))
	copy(out, o.ops)
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ops)
}

func (o *Outbox) head() (Op, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.ops) == 0 {
		return Op{}, false
	}
	return o.ops[0], true
}

func (o *Outbox) remove(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, op := range o.ops {
		if op.ID == id {
			o.ops = append(o.ops[:i], o.ops[i+1:]...)
			return
		}
	}
}

// Flush replays the queue in order through send. Each op is retried with
// backoff while the failure is transient. A refused op (4xx) is dropped and
// reported; a transient failure that outlasts the retries stops the pass
// and leaves it and everything after it queued.
func (o *Outbox) Flush(ctx context.Context, send func(context.Context, Op) error) (FlushResult, error) {
	var res FlushResult
	for {
		op, ok := o.head()
		if !ok {
			return res, nil
		}

		policy := &serverHintBackOff{BackOff: o.newBackOff()}
		err := backoff.Retry(func() error {
			err := send(ctx, op)
			if err != nil && !Retryable(err) {
				return backoff.Permanent(err)
			}
			policy.observe(err)
			return err
		}, backoff.WithContext(policy, ctx))

		switch {
		case err == nil:
			o.remove(op.ID)
			res.Sent++
		case ctx.Err() != nil, Retryable(err), errors.Is(err, ErrSessionExpired):
			res.Remaining = o.Len()
			return res, err
		default:
			o.remove(op.ID)
			res.Dropped = append(res.Dropped, Dropped{Op: op, Err: err})
		}
	}
}

// serverHintBackOff waits at least as long as the last Retry-After the
// server sent. It stops when the wrapped policy stops.
type serverHintBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *serverHintBackOff) observe(err error) {
	b.hint = 0
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		b.hint = apiErr.RetryAfter
	}
}

func (b *serverHintBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || next >= b.hint {
		return next
	}
	return b.hint
}

// Retryable reports whether err is a transient failure: the request never
// got an answer, the server asked to slow down (408, 429) or it answered 5xx.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrSessionExpired) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}
