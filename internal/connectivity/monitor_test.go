package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsOnline(t *testing.T) {
	assert.True(t, New().Online())
	assert.False(t, New(WithInitial(false)).Online())
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	m := New()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(true) // no change, no event
	select {
	case v := <-ch:
		t.Fatalf("unexpected event %v", v)
	default:
	}

	m.Set(false)
	require.False(t, <-ch)
	assert.False(t, m.Online())

	m.Set(true)
	require.True(t, <-ch)
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	m := New()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(false)
	m.Set(true)
	m.Set(false)

	assert.False(t, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("expected a single coalesced event, got extra %v", v)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	m := New()
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	m.Set(false) // must not panic on a closed subscriber
}
