package registry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/wps/service"
)

func newRegistry(t *testing.T, cfg *registry.Config) *registry.Registry {
	t.Helper()
	reg, err := registry.NewRegistry(zap.NewNop(), cfg)
	require.NoError(t, err)
	return reg
}

func TestNewRegistry(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		_, err := registry.NewRegistry(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger cannot be nil")
	})

	t.Run("bad pattern", func(t *testing.T) {
		_, err := registry.NewRegistry(zap.NewNop(), &registry.Config{AllowedHosts: []string{"[a-"}})
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		reg := newRegistry(t, nil)
		assert.Zero(t, reg.Len())
	})
}

func TestRegistry_Add(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{name: "http", url: "http://wps.example.org/wps"},
		{name: "https", url: "https://wps.example.org/wps?map=a"},
		{name: "upper-case scheme", url: "HTTP://wps.example.org/wps"},
		{name: "ftp", url: "ftp://x", wantErr: registry.ErrURL},
		{name: "relative", url: "/wps", wantErr: registry.ErrURL},
		{name: "no host", url: "http://", wantErr: registry.ErrURL},
		{name: "empty", url: "", wantErr: registry.ErrURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(t, nil)
			e, err := reg.Add(tt.url)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Zero(t, reg.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registry.ServiceID(tt.url), e.ID)
			assert.Equal(t, tt.url, e.Service.URL())
		})
	}
}

func TestRegistry_AddDuplicate(t *testing.T) {
	reg := newRegistry(t, nil)
	_, err := reg.Add("http://wps.example.org/wps")
	require.NoError(t, err)

	_, err = reg.Add("http://wps.example.org/wps")
	assert.True(t, errors.Is(err, registry.ErrServiceExists))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_AllowedHosts(t *testing.T) {
	reg := newRegistry(t, &registry.Config{AllowedHosts: []string{"*.example.org", "localhost"}})

	_, err := reg.Add("http://wps.example.org:8080/wps")
	require.NoError(t, err)
	_, err = reg.Add("http://LOCALHOST/wps")
	require.NoError(t, err)
	_, err = reg.Add("http://evil.test/wps")
	assert.True(t, errors.Is(err, registry.ErrHostNotAllowed))
}

func TestRegistry_GetRemoveList(t *testing.T) {
	reg := newRegistry(t, nil)
	a, err := reg.Add("http://a.example.org/wps")
	require.NoError(t, err)
	b, err := reg.Add("http://b.example.org/wps")
	require.NoError(t, err)

	got, err := reg.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a.Service, got.Service)

	got, err = reg.GetByURL(" http://b.example.org/wps ")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID, "registration order")

	require.NoError(t, reg.Remove(a.ID))
	_, err = reg.Get(a.ID)
	assert.True(t, errors.Is(err, registry.ErrServiceNotFound))
	assert.True(t, errors.Is(reg.Remove(a.ID), registry.ErrServiceNotFound))

	_, err = reg.Add("http://a.example.org/wps")
	assert.NoError(t, err, "a removed URL can be registered again")
}

func TestServiceID_Stable(t *testing.T) {
	assert.Equal(t, registry.ServiceID("http://a/wps"), registry.ServiceID("http://a/wps"))
	assert.NotEqual(t, registry.ServiceID("http://a/wps"), registry.ServiceID("http://b/wps"))
}

type countingRefresher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  bool
	total atomic.Int32
}

func (c *countingRefresher) RefreshCapabilities(_ context.Context, svc *service.Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[svc.URL()]++
	c.total.Add(1)
	if c.fail {
		return errors.New("unreachable")
	}
	return nil
}

func TestRegistry_RefreshAll(t *testing.T) {
	ref := &countingRefresher{}
	reg := newRegistry(t, &registry.Config{Refresher: ref})
	a, err := reg.Add("http://a.example.org/wps")
	require.NoError(t, err)

	reg.RefreshAll(context.Background())
	e, err := reg.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, e.Healthy)
	assert.False(t, e.LastRefresh.IsZero())

	ref.fail = true
	reg.RefreshAll(context.Background())
	e, _ = reg.Get(a.ID)
	assert.False(t, e.Healthy)
	assert.Equal(t, "unreachable", e.RefreshError)
	assert.Equal(t, 2, ref.calls["http://a.example.org/wps"])
}

func TestRegistry_RefreshLoop(t *testing.T) {
	ref := &countingRefresher{}
	reg := newRegistry(t, &registry.Config{Refresher: ref, RefreshInterval: 10 * time.Millisecond})
	_, err := reg.Add("http://a.example.org/wps")
	require.NoError(t, err)

	reg.StartRefresh(context.Background())
	assert.Eventually(t, func() bool { return ref.total.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	reg.StopRefresh()
	reg.StopRefresh()
}

func TestRegistry_Check(t *testing.T) {
	reg := newRegistry(t, nil)
	a, err := reg.Add("http://a.example.org/wps")
	require.NoError(t, err)

	assert.NoError(t, reg.Check(a.ID), "never refreshed")

	reg.MarkRefreshed(a.ID, errors.New("unreachable"))
	err = reg.Check(a.ID)
	assert.True(t, errors.Is(err, registry.ErrRefreshFailed), "got %v", err)
	assert.Contains(t, err.Error(), "unreachable")

	reg.MarkRefreshed(a.ID, nil)
	assert.NoError(t, reg.Check(a.ID))

	assert.True(t, errors.Is(reg.Check("missing"), registry.ErrServiceNotFound))
}
