package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Items []string `json:"items"`
}

func newTestClient(timeout time.Duration) *Client {
	return NewClient(nil, "test-agent", timeout)
}

func TestGetJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "n8n", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":["a","b"]}`))
	}))
	defer srv.Close()

	var out payload
	err := newTestClient(time.Second).GetJSON(context.Background(), Request{
		Source:   "test",
		Endpoint: srv.URL,
		Params:   url.Values{"q": {"n8n"}},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Items)
}

func TestGetJSONClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   Kind
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, kind: KindRateLimited},
		{name: "forbidden", status: http.StatusForbidden, kind: KindForbidden},
		{name: "server error", status: http.StatusInternalServerError, kind: KindServerError},
		{name: "bad gateway", status: http.StatusBadGateway, kind: KindServerError},
		{name: "not found", status: http.StatusNotFound, kind: KindClientError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			var out payload
			err := newTestClient(time.Second).GetJSON(context.Background(), Request{Source: "test", Endpoint: srv.URL}, &out)

			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			var upErr *Error
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.status, upErr.Status)
		})
	}
}

func TestGetJSONTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	var out payload
	err := newTestClient(50*time.Millisecond).GetJSON(context.Background(), Request{Source: "test", Endpoint: srv.URL}, &out)

	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestGetJSONNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	var out payload
	err := newTestClient(time.Second).GetJSON(context.Background(), Request{Source: "test", Endpoint: endpoint}, &out)

	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestGetJSONDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out payload
	err := newTestClient(time.Second).GetJSON(context.Background(), Request{Source: "test", Endpoint: srv.URL}, &out)

	assert.Equal(t, KindDecode, KindOf(err))
}

func TestFailFastMakesSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out payload
	err := newTestClient(time.Second).GetJSON(context.Background(), Request{Source: "test", Endpoint: srv.URL, Policy: FailFast()}, &out)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBoundedRetryRecoversFromRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"items":["ok"]}`))
	}))
	defer srv.Close()

	var out payload
	policy := BoundedRetry{Attempts: 3, Delay: time.Millisecond}
	err := newTestClient(time.Second).GetJSON(context.Background(), Request{Source: "test", Endpoint: srv.URL, Policy: policy}, &out)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []string{"ok"}, out.Items)
}

func TestBoundedRetryGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	var out payload
	policy := BoundedRetry{Attempts: 3, Delay: time.Millisecond}
	err := newTestClient(time.Second).GetJSON(context.Background(), Request{Source: "test", Endpoint: srv.URL, Policy: policy}, &out)

	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestBoundedRetryDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var out payload
	policy := BoundedRetry{Attempts: 3, Delay: time.Millisecond}
	err := newTestClient(time.Second).GetJSON(context.Background(), Request{Source: "test", Endpoint: srv.URL, Policy: policy}, &out)

	assert.Equal(t, KindServerError, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPolicyByName(t *testing.T) {
	assert.Equal(t, PolicyRetry, PolicyByName("retry").Name())
	assert.Equal(t, PolicyFailFast, PolicyByName("fail-fast").Name())
	assert.Equal(t, PolicyFailFast, PolicyByName("").Name())
	assert.IsType(t, BoundedRetry{}, PolicyByName(PolicyRetry))
}
