package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDelivers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	Emit(b, EventHostReserved, "host h1 reserved", map[string]string{"host": "h1"})

	select {
	case ev := <-sub:
		require.NotNil(t, ev)
		assert.Equal(t, EventHostReserved, ev.Type)
		assert.Equal(t, "h1", ev.Metadata["host"])
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, EventShardFailed, "ignored", nil)
	})
}
