package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGatewayClient(srv.URL, "secret-key", 2*time.Second, zap.NewNop())
}

func TestGatewayClient_SchemePrepended(t *testing.T) {
	c := NewGatewayClient("gateway.example.com/", "k", 0, zap.NewNop())
	assert.Equal(t, "https://gateway.example.com", c.baseURL)

	c = NewGatewayClient("http://gateway.example.com", "k", 0, zap.NewNop())
	assert.Equal(t, "http://gateway.example.com", c.baseURL)
}

func TestGatewayClient_SendText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"key": map[string]any{"id": "MSG123", "remoteJid": "5511999998888@s.whatsapp.net"},
		})
	})

	result, err := c.SendText(context.Background(), "inst1", "5511999998888", "hello")
	require.NoError(t, err)

	assert.Equal(t, "/message/sendText/inst1", gotPath)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "5511999998888", gotBody["number"])
	assert.Equal(t, "hello", gotBody["text"])
	assert.Equal(t, "MSG123", result.MessageID)
	assert.Equal(t, "5511999998888@s.whatsapp.net", result.RemoteJid)
}

func TestGatewayClient_UnauthorizedClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.SendText(context.Background(), "inst1", "55119999", "x")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ERR_WAPP_UNAUTHORIZED"))
}

func TestGatewayClient_NotFoundClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.ConnectionState(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ERR_WAPP_INSTANCE_NOT_FOUND"))
}

func TestGatewayClient_ServerErrorTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.DeleteInstance(context.Background(), "inst1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ERR_WAPP_TRANSIENT"))
}

func TestGatewayClient_ClientErrorConfig(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"number is invalid"}`))
	})

	_, err := c.SendText(context.Background(), "inst1", "bogus", "x")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ERR_WAPP_CONFIG"))
}

func TestGatewayClient_NetworkFailureTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewGatewayClient(srv.URL, "k", time.Second, zap.NewNop())

	_, err := c.FetchInstances(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ERR_WAPP_TRANSIENT"))
}

func TestGatewayClient_ConnectExtractsQR(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"qrcode": map[string]any{"base64": "data:image/png;base64,AAAA"},
		})
	})

	result, err := c.Connect(context.Background(), "inst1")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", result.QRCode)
}

func TestGatewayClient_ConnectionStateNested(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"instance": map[string]any{"state": "open"},
		})
	})

	state, err := c.ConnectionState(context.Background(), "inst1")
	require.NoError(t, err)
	assert.Equal(t, "open", state)
}

func TestGatewayClient_HasInstance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"instance": map[string]any{"instanceName": "alpha"}},
			{"name": "beta"},
		})
	})

	ok, err := c.HasInstance(context.Background(), "beta")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasInstance(context.Background(), "alpha")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasInstance(context.Background(), "gamma")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGatewayClient_FetchProfilePictureSoftMiss(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	url, err := c.FetchProfilePicture(context.Background(), "inst1", "5511999998888")
	require.NoError(t, err)
	assert.Empty(t, url)
}
