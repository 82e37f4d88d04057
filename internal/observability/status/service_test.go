package status

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "phrasecron/pkg/logx"
)

func TestWithAuth(t *testing.T) {
	t.Parallel()
	h := withAuth("tok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("hi")) })

	for _, tc := range []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/status", "", http.StatusUnauthorized},
		{"wrong", "/status?token=nope", "", http.StatusUnauthorized},
		{"query", "/status?token=tok", "", http.StatusOK},
		{"bearer", "/status", "Bearer tok", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	assert.True(t, isLoopbackAddr("127.0.0.1:6061"))
	assert.True(t, isLoopbackAddr("[::1]:6061"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.False(t, isLoopbackAddr(":6061"))
	assert.False(t, isLoopbackAddr("0.0.0.0:6061"))
	assert.False(t, isLoopbackAddr("6061"))
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	s := New(Config{}, func(context.Context) any { return map[string]int{"jobs": 2} }, logx.Nop())

	srv := httptest.NewServer(s.handler(Config{Enabled: true}))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get("/status")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"jobs":2}`, body)

	code, _ = get("/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}, nil, logx.Nop())

	s.Start(ctx)
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/debug/pprof/cmdline")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Enabling a token restarts the listener.
	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t"})
	require.NotEmpty(t, s.Addr())
	resp, err = http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Reconfigure(stopCtx, Config{})
	assert.Empty(t, s.Addr())
	assert.False(t, s.Enabled())
}

func TestRefusesPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, logx.Nop())
	s.Start(t.Context())
	assert.Empty(t, s.Addr())
	s.Stop(t.Context())
}
