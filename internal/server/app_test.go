package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/logging"
	"github.com/dmitrijs2005/assistauth/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = config.MemoryDSN
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.ShutdownTimeout = time.Second
	return c
}

func TestNewApp_MemoryStore(t *testing.T) {
	app, err := newApp(context.Background(), memoryConfig(), logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.memoryLimiter)

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_RateLimitDisabled(t *testing.T) {
	c := memoryConfig()
	c.RateLimitRPS = 0
	app, err := newApp(context.Background(), c, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.memoryLimiter)
}

func TestNewApp_BadSMTPSender(t *testing.T) {
	c := memoryConfig()
	c.SMTPURL = "smtp://localhost:25"
	c.MailFrom = "not an address"
	_, err := newApp(context.Background(), c, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail init error")
}

func TestNewApp_InvalidLogLevel(t *testing.T) {
	c := memoryConfig()
	c.LogLevel = "loud"
	_, err := NewApp(context.Background(), c)
	assert.Error(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	app, err := newApp(context.Background(), memoryConfig(), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop after context cancel")
	}
}
