package stream

import (
	"encoding/json"
	"testing"
	"time"

	"dropradar/pkg/logger"

	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New("error", false, "", "text", logger.Rotation{})
}

func receive(t *testing.T, ch chan []byte) Envelope {
	t.Helper()
	select {
	case data := <-ch:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		return envelope
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Envelope{}
	}
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	s := NewStream(16, testLogger())

	ch, cleanup := s.Subscribe()
	defer cleanup()
	require.Equal(t, 1, s.ClientCount())

	s.Publish("record_created", map[string]string{"name": "Drop Token"})

	envelope := receive(t, ch)
	require.Equal(t, "record_created", envelope.Kind)
	payload, ok := envelope.Payload.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Drop Token", payload["name"])
}

func TestPublishBuffersWithoutClients(t *testing.T) {
	s := NewStream(16, testLogger())

	s.Publish("record_created", map[string]string{"name": "Early Drop"})
	s.Publish("record_ended", map[string]string{"name": "Early Drop"})

	ch, cleanup := s.Subscribe()
	defer cleanup()

	first := receive(t, ch)
	require.Equal(t, "record_created", first.Kind)
	second := receive(t, ch)
	require.Equal(t, "record_ended", second.Kind)
}

func TestCleanupRemovesClient(t *testing.T) {
	s := NewStream(16, testLogger())

	_, cleanup := s.Subscribe()
	require.Equal(t, 1, s.ClientCount())

	cleanup()
	require.Equal(t, 0, s.ClientCount())

	// Double cleanup must not panic on the closed channel.
	cleanup()
}

func TestSlowClientDoesNotBlockPublish(t *testing.T) {
	s := NewStream(1, testLogger())

	ch, cleanup := s.Subscribe()
	defer cleanup()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Client never reads; the second publish must drop, not block.
		s.Publish("a", 1)
		s.Publish("b", 2)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow client")
	}
	require.Len(t, ch, 1)
}
