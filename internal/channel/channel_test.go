package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertrelay.io/relay/internal/config"
)

func TestChatClientSend(t *testing.T) {
	var got chatSendRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChatClient(config.ChatConfig{APIURL: srv.URL, APIToken: "secret", Timeout: 5 * time.Second})
	err := c.Send(context.Background(), "+34600111222", "disk usage above threshold")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "+34600111222", got.Phone)
	assert.Equal(t, "disk usage above threshold", got.Message)
}

func TestChatClientSendGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "number not registered", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewChatClient(config.ChatConfig{APIURL: srv.URL})
	err := c.Send(context.Background(), "+34600111222", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "number not registered")
}

func TestRenderEmailBodyActionLinks(t *testing.T) {
	body := RenderEmailBody("https://relay.example.com/", "n-42", "tok+1", "CPU alert", "usage > 95%\nhost web-1")

	assert.Contains(t, body, "https://relay.example.com/notifications/n-42/received?token=tok%2B1")
	assert.Contains(t, body, "https://relay.example.com/notifications/n-42/resolved?token=tok%2B1")
	assert.Contains(t, body, "https://relay.example.com/notifications/n-42/cancel?token=tok%2B1")

	// Body content is escaped, not interpreted.
	assert.Contains(t, body, "usage &gt; 95%")
}

func TestRenderEmailBodyWithoutToken(t *testing.T) {
	body := RenderEmailBody("https://relay.example.com", "n-42", "", "CPU alert", "usage high")
	assert.NotContains(t, body, "/notifications/n-42/")
}
