package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/wps/service"
)

func newClient(t *testing.T, cfg Config) *HTTPClient {
	t.Helper()
	cfg.Logger = zap.NewNop()
	c, err := NewHTTPClient(&cfg)
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "config cannot be nil"},
		{name: "nil logger", cfg: &Config{}, wantErr: "logger cannot be nil"},
		{name: "defaults", cfg: &Config{Logger: zap.NewNop()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewHTTPClient(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultUserAgent, c.userAgent)
			assert.Equal(t, DefaultBurst, c.burst)
		})
	}
}

func TestSend_Post(t *testing.T) {
	var gotBody, gotType, gotAction, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		gotAction = r.Header.Get("SOAPAction")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer srv.Close()

	c := newClient(t, Config{UserAgent: "test-agent"})
	resp, err := c.Send(context.Background(), service.Request{
		Operation:   service.OpGetCapabilities,
		Method:      http.MethodPost,
		URL:         srv.URL,
		ContentType: service.ContentTypeXML,
		Header:      map[string]string{"SOAPAction": "urn:x"},
		Body:        "<req/>",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<ok/>", string(resp.Body))
	assert.Equal(t, "<req/>", gotBody)
	assert.Equal(t, service.ContentTypeXML, gotType)
	assert.Equal(t, "urn:x", gotAction)
	assert.Equal(t, "test-agent", gotUA)
}

func TestSend_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("<ows:ExceptionReport/>"))
	}))
	defer srv.Close()

	c := newClient(t, Config{})
	_, err := c.Send(context.Background(), service.Request{Operation: service.OpDescribeProcess, Method: http.MethodGet, URL: srv.URL})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "<ows:ExceptionReport/>", string(se.Body))
}

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("<status/>"))
	}))
	defer srv.Close()

	body, err := newClient(t, Config{}).FetchStatus(context.Background(), srv.URL+"/status/1.xml")
	require.NoError(t, err)
	assert.Equal(t, "<status/>", string(body))
}

func TestBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	_, err := newClient(t, Config{MaxBodyBytes: 10}).FetchStatus(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}

func TestPerHostLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := newClient(t, Config{RequestsPerSecond: 0.001, Burst: 1})
	_, err := c.FetchStatus(context.Background(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchStatus(ctx, srv.URL)
	require.Error(t, err, "second request must wait for a token")

	assert.Same(t, c.limiter("a:1"), c.limiter("a:1"))
	assert.NotSame(t, c.limiter("a:1"), c.limiter("b:1"))
}

func TestCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newClient(t, Config{}).FetchStatus(ctx, srv.URL)
	assert.True(t, errors.Is(err, context.Canceled))
}
