package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	topic string
	calls int
	errs  []error
}

func (h *stubHandler) Topic() string { return h.topic }

func (h *stubHandler) Handle(context.Context, []byte) error {
	h.calls++
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func newTestConsumer(t *testing.T, retries int) (*Consumer, *memWriter) {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
		WithConsumerDLQ("facts.dlq"),
	)
	require.NoError(t, err)
	w := &memWriter{}
	c.dlq = w
	return c, w
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	c, dlq := newTestConsumer(t, 3)
	h := &stubHandler{topic: "facts", errs: []error{errors.New("down"), errors.New("down")}}

	commit := c.process(context.Background(), h, kafka.Message{Topic: "facts", Value: []byte("{}")})

	assert.True(t, commit)
	assert.Equal(t, 3, h.calls)
	assert.Empty(t, dlq.msgs)
}

func TestProcessPermanentErrorSkipsRetry(t *testing.T) {
	c, dlq := newTestConsumer(t, 5)
	h := &stubHandler{topic: "facts", errs: []error{Permanent(errors.New("bad payload"))}}

	commit := c.process(context.Background(), h, kafka.Message{Topic: "facts", Value: []byte("x")})

	assert.True(t, commit, "parked in DLQ so offset can advance")
	assert.Equal(t, 1, h.calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "facts.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("x"), dlq.msgs[0].Value)
	assert.Equal(t, "source_topic", dlq.msgs[0].Headers[0].Key)
}

func TestProcessExhaustedWithoutDLQDoesNotCommit(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(1, time.Millisecond, time.Millisecond),
	)
	require.NoError(t, err)
	h := &stubHandler{topic: "facts", errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}

	commit := c.process(context.Background(), h, kafka.Message{Topic: "facts"})

	assert.False(t, commit)
	assert.Equal(t, 2, h.calls)
}

func TestProcessHookRejects(t *testing.T) {
	c, dlq := newTestConsumer(t, 0)
	var finals int
	c.WithConsumerHook(HookFuncs{
		Before: func(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
			return ctx, data, Permanent(&HookError{Code: "ERR_VALIDATION"})
		},
		Err: func(_ context.Context, _ string, _ kafka.Message, _ error, final bool) {
			if final {
				finals++
			}
		},
	})
	h := &stubHandler{topic: "facts"}

	commit := c.process(context.Background(), h, kafka.Message{Topic: "facts"})

	assert.True(t, commit)
	assert.Zero(t, h.calls)
	assert.Equal(t, 1, finals)
	assert.Len(t, dlq.msgs, 1)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
