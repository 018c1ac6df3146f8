package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"tokenmeta/pkg/requestcontext"
)

func TestNewEvent(t *testing.T) {
	fixed := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-9"), fixed)

	e := NewEvent(ctx, EventMetadataUpdated, "token", nil)
	assert.NotEqual(t, [16]byte{}, [16]byte(e.ID))
	assert.Equal(t, "req-9", e.RequestID)
	assert.Equal(t, fixed, e.Timestamp)
	assert.Equal(t, []string{}, e.Properties)
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestKafkaPublisher(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewKafkaPublisher(producer, "changes")
	event := NewEvent(context.Background(), EventMetadataCreated, "token", []string{"name", "price"})

	require.NoError(t, pub.Emit(context.Background(), event))
	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "changes", rec.Topic)
	assert.Equal(t, []byte("token"), rec.Key)
	assert.Equal(t, "event_type", rec.Headers[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, []string{"name", "price"}, decoded.Properties)

	producer.err = errors.New("broker down")
	assert.Error(t, pub.Emit(context.Background(), event))
}

type flakySink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *flakySink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *flakySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestWorkerDeliversAndDrains(t *testing.T) {
	sink := &flakySink{}
	w := NewWorker(sink, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, w.Emit(ctx, NewEvent(ctx, EventMetadataCreated, "a", nil)))
	require.NoError(t, w.Emit(ctx, NewEvent(ctx, EventMetadataUpdated, "a", nil)))

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWorkerQueueFull(t *testing.T) {
	w := NewWorker(&flakySink{}, 1, nil)
	ctx := context.Background()
	require.NoError(t, w.Emit(ctx, Event{Subject: "a"}))
	assert.ErrorIs(t, w.Emit(ctx, Event{Subject: "b"}), ErrQueueFull)
}

func TestWorkerSurvivesSinkFailures(t *testing.T) {
	sink := &flakySink{fail: true}
	w := NewWorker(sink, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, w.Emit(context.Background(), Event{Subject: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
	assert.Zero(t, sink.count())
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	require.NoError(t, p.Emit(context.Background(), Event{Subject: "a"}))
	events := p.Events()
	require.Len(t, events, 1)
	events[0].Subject = "mutated"
	assert.Equal(t, "a", p.Events()[0].Subject)
	assert.NoError(t, NopPublisher{}.Emit(context.Background(), Event{}))
}
