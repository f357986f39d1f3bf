package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookMailer(t *testing.T) {
	var got map[string]any
	var idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/send":
			idem = r.Header.Get("Idempotency-Key")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			if got["to"] == "bounce@x.io" {
				http.Error(w, "mailbox full", http.StatusUnprocessableEntity)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := NewWebhookMailer(srv.URL+"/", "noreply@x.io")
	ctx := context.Background()
	require.NoError(t, m.Health(ctx))

	err := m.Send(ctx, Message{ID: "m1", Kind: "certificate_soon", To: "alice@x.io", Subject: "Reminder", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m1", idem)
	assert.Equal(t, "noreply@x.io", got["from"])
	assert.Equal(t, "alice@x.io", got["to"])
	assert.Equal(t, "Reminder", got["subject"])

	err = m.Send(ctx, Message{ID: "m2", To: "bounce@x.io"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")

	assert.ErrorIs(t, m.Send(ctx, Message{ID: "m3"}), ErrNoRecipient)
}
