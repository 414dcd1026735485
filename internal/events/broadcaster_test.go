package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	got []Event
	err error
}

func (s *recordingSink) Forward(_ context.Context, ev Event) error {
	s.got = append(s.got, ev)
	return s.err
}

func newTestBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	return NewBroadcaster(NewLog(), NewMux(), opts...)
}

func TestBroadcaster_EmitRoutesByKind(t *testing.T) {
	b := newTestBroadcaster()
	ctx := context.Background()
	require.NoError(t, b.Mux().Open(SubscriptionChannel(7)))

	all, _ := b.Mux().Subscribe(AllChannel)
	created, _ := b.Mux().Subscribe(KindChannel(KindCreated))
	updated, _ := b.Mux().Subscribe(KindChannel(KindUpdated))
	sub, _ := b.Mux().Subscribe(SubscriptionChannel(7))

	ev1, err := b.Emit(ctx, KindCreated, "urn:a", 0)
	require.NoError(t, err)
	ev2, err := b.Emit(ctx, KindQueryMatch, "urn:a", 7)
	require.NoError(t, err)

	assert.Equal(t, ev1, receive(t, created))
	assert.Equal(t, ev2, receive(t, sub))
	assert.Equal(t, ev1, receive(t, all))
	assert.Equal(t, ev2, receive(t, all))
	assertNothing(t, updated)
	assertNothing(t, created)
	assert.Equal(t, 2, b.Log().Len())
}

func TestBroadcaster_SinkFailureStillLogs(t *testing.T) {
	sink := &recordingSink{err: errors.New("nats down")}
	b := newTestBroadcaster(WithSink(sink))

	ev, err := b.Emit(context.Background(), KindDeleted, "urn:a", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats down")
	assert.Equal(t, []Event{ev}, sink.got)
	assert.Equal(t, int64(1), b.Log().LastSeq())
}

func TestBroadcaster_AttachWithReplay(t *testing.T) {
	b := newTestBroadcaster()
	ctx := context.Background()
	b.Emit(ctx, KindCreated, "urn:a", 0) // 1
	b.Emit(ctx, KindUpdated, "urn:a", 0) // 2
	b.Emit(ctx, KindCreated, "urn:b", 0) // 3

	last := int64(0)
	s, err := b.Attach(KindChannel(KindCreated), &last)
	require.NoError(t, err)
	defer s.Close()

	b.Emit(ctx, KindCreated, "urn:c", 0) // 4

	var got []int64
	for i := 0; i < 3; i++ {
		ev, err := s.Next(ctx)
		require.NoError(t, err)
		got = append(got, ev.Seq)
	}
	assert.Equal(t, []int64{1, 3, 4}, got)
}

func TestBroadcaster_AttachWithoutReplay(t *testing.T) {
	b := newTestBroadcaster()
	ctx := context.Background()
	b.Emit(ctx, KindCreated, "urn:a", 0)

	s, err := b.Attach(AllChannel, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Preamble())

	b.Emit(ctx, KindUpdated, "urn:a", 0)
	ev, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ev.Seq)
}

func TestStream_FreshDropsDuplicates(t *testing.T) {
	b := newTestBroadcaster()
	ctx := context.Background()
	b.Emit(ctx, KindCreated, "urn:a", 0)

	zero := int64(0)
	s, err := b.Attach(AllChannel, &zero)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []int64{1}, seqs(s.Preamble()))
	assert.False(t, s.Fresh(Event{Seq: 1}))
	assert.True(t, s.Fresh(Event{Seq: 2}))
	assert.False(t, s.Fresh(Event{Seq: 2}))
}

func TestStream_NextEndsOnRemoveAndCancel(t *testing.T) {
	b := newTestBroadcaster()
	key := SubscriptionChannel(3)
	require.NoError(t, b.Mux().Open(key))

	s, err := b.Attach(key, nil)
	require.NoError(t, err)
	require.NoError(t, b.Mux().Remove(key))
	_, err = s.Next(context.Background())
	assert.True(t, errors.Is(err, ErrStreamClosed))

	s2, err := b.Attach(AllChannel, nil)
	require.NoError(t, err)
	defer s2.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s2.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
