package http

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocorrencias/config"
)

func TestServerServeAndStop(t *testing.T) {
	handlers, err := NewHandlers(parkPredictor(t), HandlerOptions{})
	require.NoError(t, err)

	cfg := config.Default().HTTP
	cfg.Host, cfg.Port = "127.0.0.1", 5001
	s := NewServer(cfg, handlers, nil)
	assert.Equal(t, "127.0.0.1:5001", s.Addr())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Without a gatherer there is no metrics route.
	resp, err = client.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, s.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
