package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackSubjectUsesPrefixAndRequestID(t *testing.T) {
	assert.Equal(t, "noetl.callbacks.abc123", CallbackSubject("noetl.callbacks", "abc123"))
}

func TestNotificationRoundTripsThroughJSON(t *testing.T) {
	n := Notification{
		ExecutionID: 42,
		EventID:     7,
		CommandID:   "cmd-1",
		Step:        "start",
		ServerURL:   "http://localhost:8080",
	}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var out Notification
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, n, out)
}

func TestEnvelopeCarriesRawNotificationPayload(t *testing.T) {
	n := Notification{ExecutionID: 1, CommandID: "c1", Step: "start"}
	payload, err := json.Marshal(n)
	require.NoError(t, err)

	env := Envelope{Subject: "noetl.commands", Payload: payload}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))

	var decodedNotification Notification
	require.NoError(t, json.Unmarshal(decoded.Payload, &decodedNotification))
	assert.Equal(t, n, decodedNotification)
}

// TestSubjectsReflectsRegisteredHandlers exercises the handler
// bookkeeping directly, without standing up a live listener
// connection (no Postgres available in this test environment).
func TestSubjectsReflectsRegisteredHandlers(t *testing.T) {
	b := &Bus{handlers: map[string][]Handler{}}
	b.handlers["noetl.commands"] = append(b.handlers["noetl.commands"], func(_ context.Context, _ Envelope) error { return nil })

	assert.Contains(t, b.Subjects(), "noetl.commands")
}
