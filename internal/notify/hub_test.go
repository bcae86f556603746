package notify

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvrisk-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEvent(id string) domain.Event {
	return domain.Event{
		Type:         "evaluation.completed",
		EvaluationID: id,
		Algorithm:    domain.AlgorithmFramingham,
		Category:     domain.RiskHigh,
		Timestamp:    time.Now().UTC(),
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(testLogger(), 2)
	defer hub.Close()

	// Far more events than the buffer holds; overflow is dropped, not queued.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(testEvent("e"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked the pipeline")
	}
}

func TestHub_PublishAfterClose(t *testing.T) {
	hub := NewHub(testLogger(), 4)
	hub.Close()
	hub.Close() // idempotent

	// Must not panic or block once the hub is shut down.
	hub.Publish(testEvent("late"))
}

func TestHub_BroadcastToSubscriber(t *testing.T) {
	hub := NewHub(testLogger(), 16)
	defer hub.Close()

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a moment to register the subscriber.
	time.Sleep(50 * time.Millisecond)

	hub.Publish(testEvent("eval-7"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event domain.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "evaluation.completed", event.Type)
	assert.Equal(t, "eval-7", event.EvaluationID)
	assert.Equal(t, domain.AlgorithmFramingham, event.Algorithm)
}

func TestLogNotifier_Publish(t *testing.T) {
	notifier := NewLogNotifier(testLogger())

	// Fire-and-forget: no error surface, no panic.
	notifier.Publish(testEvent("eval-1"))
	notifier.Publish(domain.Event{Type: "evaluation.failed", Error: "upstream timeout"})
}
