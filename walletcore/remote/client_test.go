package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
)

type quote struct {
	Amount string `json:"amount"`
}

func fastConfig() remote.FailoverConfig {
	cfg := remote.DefaultFailoverConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.HealthCheckInterval = time.Hour
	cfg.Timeout = time.Second
	return cfg
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/quote")
		assert.Equal(t, r.Header.Get("X-Api-Key"), "secret")
		_ = json.NewEncoder(w).Encode(quote{Amount: "42"})
	}))
	defer srv.Close()

	client, err := remote.NewClientWithFailover("test", srv.URL, nil, fastConfig())
	assert.NoError(t, err)
	defer client.Close()
	client.SetHeader("X-Api-Key", "secret")

	var out quote
	assert.NoError(t, client.GetJSON(context.Background(), "/quote", &out))
	assert.Equal(t, out.Amount, "42")
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, http.MethodPost)
		var in quote
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(quote{Amount: in.Amount + "0"})
	}))
	defer srv.Close()

	client, err := remote.NewClient("test", srv.URL)
	assert.NoError(t, err)
	defer client.Close()

	var out quote
	assert.NoError(t, client.PostJSON(context.Background(), "/swap", quote{Amount: "7"}, &out))
	assert.Equal(t, out.Amount, "70")
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such pair", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := remote.NewClientWithFailover("test", srv.URL, nil, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	var out quote
	err = client.GetJSON(context.Background(), "/quote", &out)
	assert.Error(t, err)
	assert.Equal(t, remote.StatusCode(err), http.StatusNotFound)
	assert.Equal(t, calls.Load(), int32(1))
}

func TestFailoverToBackup(t *testing.T) {
	var primaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(quote{Amount: "1"})
	}))
	defer backup.Close()

	client, err := remote.NewClientWithFailover("test", primary.URL, []string{backup.URL}, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	var out quote
	assert.NoError(t, client.GetJSON(context.Background(), "/quote", &out))
	assert.Equal(t, out.Amount, "1")
	assert.Equal(t, client.CurrentURL(), backup.URL)
	assert.Equal(t, primaryCalls.Load(), int32(3))
}

func TestInvalidPrimaryURL(t *testing.T) {
	_, err := remote.NewClient("test", "not a url")
	assert.Error(t, err)
}
