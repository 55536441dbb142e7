package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/bms-controller/internal/bms"
)

// stalledPublisher blocks every publish until release is closed.
type stalledPublisher struct {
	FakePublisher
	release chan struct{}
}

func (s *stalledPublisher) Publish(tr bms.Transition) error {
	<-s.release
	return s.FakePublisher.Publish(tr)
}

func (s *stalledPublisher) PublishSystem(event SystemEvent) error {
	<-s.release
	return s.FakePublisher.PublishSystem(event)
}

func TestAsyncPublisherDoesNotWaitForBroker(t *testing.T) {
	inner := &stalledPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(inner, 4)

	start := time.Now()
	require.NoError(t, p.Publish(bms.Transition{From: bms.StateOff, To: bms.StateDis}))
	require.NoError(t, p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}))
	assert.Less(t, time.Since(start), time.Second, "enqueue must not wait on the broker")

	close(inner.release)
	require.NoError(t, p.Close())

	require.Len(t, inner.Transitions, 1)
	assert.Equal(t, bms.StateDis, inner.Transitions[0].To)
	require.Len(t, inner.SystemEvents, 1)
	assert.Equal(t, "HEARTBEAT", inner.SystemEvents[0].Event)
	assert.True(t, inner.Closed)
}

func TestAsyncPublisherQueueFull(t *testing.T) {
	inner := &stalledPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(inner, 1)

	// the first job may already be held by the worker, so fill until rejected
	var err error
	for i := 0; i < 3; i++ {
		if err = p.Publish(bms.Transition{}); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(inner.release)
	require.NoError(t, p.Close())
}

func TestAsyncPublisherKeepsOrder(t *testing.T) {
	inner := NewFakePublisher()
	p := NewAsyncPublisher(inner, 8)

	for _, to := range []bms.State{bms.StateDis, bms.StateNormal, bms.StateChg} {
		require.NoError(t, p.Publish(bms.Transition{To: to}))
	}
	require.NoError(t, p.Close())

	var got []bms.State
	for _, tr := range inner.Transitions {
		got = append(got, tr.To)
	}
	assert.Equal(t, []bms.State{bms.StateDis, bms.StateNormal, bms.StateChg}, got)
}

func TestAsyncPublisherLogsInnerErrors(t *testing.T) {
	inner := NewFakePublisher()
	inner.PublishError = errors.New("broker down")
	p := NewAsyncPublisher(inner, 2)

	assert.NoError(t, p.Publish(bms.Transition{}), "inner failures are not reported to the caller")
	require.NoError(t, p.Close())
	assert.Empty(t, inner.Transitions)
}

func TestAsyncPublisherClosed(t *testing.T) {
	p := NewAsyncPublisher(NewFakePublisher(), 2)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish(bms.Transition{}), ErrPublisherClosed)
	assert.ErrorIs(t, p.PublishSystem(SystemEvent{}), ErrPublisherClosed)
	assert.NoError(t, p.Close(), "second Close is harmless")
}

func TestAsyncPublisherCloseGivesUp(t *testing.T) {
	inner := &stalledPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(inner, 2)
	p.flush = 50 * time.Millisecond

	require.NoError(t, p.Publish(bms.Transition{}))
	require.NoError(t, p.Close())
	assert.True(t, inner.Closed)
	close(inner.release)
}
