package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherInvokesAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	var calls []string

	d.Subscribe(EventCaseCreated, func(_ context.Context, e Event) error {
		calls = append(calls, "first:"+e.CaseID)
		return boom
	})
	d.Subscribe(EventCaseCreated, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.CaseID)
		return nil
	})
	d.Subscribe(EventDeadlineAlert, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventCaseCreated, CaseID: "c1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first:c1", "second:c1"}, calls)
}

func TestDispatcherWithoutHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventCaseStateChanged}))
}

func TestDispatcherRecoversPanickingHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false
	d.Subscribe(EventDeadlineAlert, func(context.Context, Event) error { panic("nil deadline") })
	d.Subscribe(EventDeadlineAlert, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventDeadlineAlert})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil deadline")
	assert.True(t, reached)
}
