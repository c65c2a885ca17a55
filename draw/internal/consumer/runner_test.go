package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lottoworks/drawstack/common/messaging"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

type fakeDelivery struct {
	msg   *messaging.Message
	mu    sync.Mutex
	state string
}

func newDelivery(data string) *fakeDelivery {
	return &fakeDelivery{msg: &messaging.Message{Subject: "lottery.test", Data: []byte(data)}}
}

func (d *fakeDelivery) Message() *messaging.Message { return d.msg }
func (d *fakeDelivery) Ack() error                  { return d.set("ack") }
func (d *fakeDelivery) Nak() error                  { return d.set("nak") }
func (d *fakeDelivery) Term() error                 { return d.set("term") }

func (d *fakeDelivery) set(s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
	return nil
}

func (d *fakeDelivery) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// fakeSource hands out the queued batches, then calls onDrained.
type fakeSource struct {
	mu        sync.Mutex
	batches   [][]messaging.Delivery
	errs      []error
	fetches   int
	onDrained func()
}

func (s *fakeSource) Fetch(ctx context.Context, max int, wait time.Duration) ([]messaging.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.batches) == 0 {
		if s.onDrained != nil {
			s.onDrained()
		}
		return nil, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	if len(b) > max {
		panic(fmt.Sprintf("batch of %d exceeds max %d", len(b), max))
	}
	return b, nil
}

type fakeDLQ struct {
	err     error
	written []error
}

func (q *fakeDLQ) Write(ctx context.Context, msg *messaging.Message, cause error) error {
	if q.err != nil {
		return q.err
	}
	q.written = append(q.written, cause)
	return nil
}

func batch(ds ...*fakeDelivery) []messaging.Delivery {
	out := make([]messaging.Delivery, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}

// handlerByPayload fails according to the message payload.
func handlerByPayload(ctx context.Context, msg *messaging.Message) error {
	switch string(msg.Data) {
	case "invalid":
		return fmt.Errorf("decode: %w", model.ErrValidation)
	case "transient":
		return errors.New("database unavailable")
	default:
		return nil
	}
}

func TestRunner_AcksAndClassifiesFailures(t *testing.T) {
	ok1, bad, flaky, ok2 := newDelivery("ok"), newDelivery("invalid"), newDelivery("transient"), newDelivery("ok")
	src := &fakeSource{batches: [][]messaging.Delivery{batch(ok1, bad), batch(flaky, ok2)}}
	dlq := &fakeDLQ{}
	r := NewRunner(Config{Name: "test", BatchSize: 2}, src, handlerByPayload, dlq, nil)
	src.onDrained = r.Stop

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, "ack", ok1.State())
	assert.Equal(t, "term", bad.State())
	assert.Equal(t, "nak", flaky.State())
	assert.Equal(t, "ack", ok2.State(), "transient failure does not stop the batch by default")
	require.Len(t, dlq.written, 1)
	assert.ErrorIs(t, dlq.written[0], model.ErrValidation)
}

func TestRunner_StopOnFailure(t *testing.T) {
	ok, flaky, after := newDelivery("ok"), newDelivery("transient"), newDelivery("ok")
	next := newDelivery("ok")
	src := &fakeSource{batches: [][]messaging.Delivery{batch(ok, flaky, after), batch(next)}}
	r := NewRunner(Config{Name: "test", BatchSize: 3, StopOnFailure: true}, src, handlerByPayload, &fakeDLQ{}, nil)

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrHalted)

	assert.Equal(t, "ack", ok.State())
	assert.Equal(t, "nak", flaky.State())
	assert.Equal(t, "nak", after.State(), "rest of the batch is released")
	assert.Empty(t, next.State(), "no further batches are fetched")
}

func TestRunner_PermanentFailureDoesNotHalt(t *testing.T) {
	bad, ok := newDelivery("invalid"), newDelivery("ok")
	src := &fakeSource{batches: [][]messaging.Delivery{batch(bad, ok)}}
	r := NewRunner(Config{Name: "test", BatchSize: 2, StopOnFailure: true}, src, handlerByPayload, &fakeDLQ{}, nil)
	src.onDrained = r.Stop

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, "term", bad.State())
	assert.Equal(t, "ack", ok.State())
}

func TestRunner_DLQFailureRedelivers(t *testing.T) {
	bad := newDelivery("invalid")
	src := &fakeSource{batches: [][]messaging.Delivery{batch(bad)}}
	r := NewRunner(Config{Name: "test", BatchSize: 1}, src, handlerByPayload, &fakeDLQ{err: errors.New("dlq down")}, nil)
	src.onDrained = r.Stop

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, "nak", bad.State())
}

func TestRunner_FetchErrorRetries(t *testing.T) {
	ok := newDelivery("ok")
	src := &fakeSource{
		errs:    []error{errors.New("nats: timeout"), errors.New("nats: timeout")},
		batches: [][]messaging.Delivery{batch(ok)},
	}
	r := NewRunner(Config{Name: "test", BatchSize: 1, RetryDelay: time.Millisecond}, src, handlerByPayload, nil, nil)
	src.onDrained = r.Stop

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, "ack", ok.State())
	assert.Equal(t, 4, src.fetches)
}

func TestRunner_InFlightMessageSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := newDelivery("ok")
	src := &fakeSource{batches: [][]messaging.Delivery{batch(d)}}

	var handlerCtxErr error
	handler := func(hctx context.Context, msg *messaging.Message) error {
		cancel()
		handlerCtxErr = hctx.Err()
		return nil
	}
	r := NewRunner(Config{Name: "test", BatchSize: 1}, src, handler, nil, nil)

	require.NoError(t, r.Run(ctx))
	assert.NoError(t, handlerCtxErr)
	assert.Equal(t, "ack", d.State())
	assert.Equal(t, 1, src.fetches, "loop exits before the next fetch")
}

func TestRunner_StopBeforeRun(t *testing.T) {
	src := &fakeSource{}
	r := NewRunner(Config{Name: "test"}, src, handlerByPayload, nil, nil)
	r.Stop()
	r.Stop()

	require.NoError(t, r.Run(context.Background()))
	assert.Zero(t, src.fetches)
}
