package accesslog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dormoron/deskweb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverBuilder_Observe(t *testing.T) {
	testCases := []struct {
		name      string
		ex        deskweb.Exchange
		wantLevel string
		wantAttrs []string
	}{
		{
			name: "成功请求",
			ex: deskweb.Exchange{
				Method: http.MethodGet, Path: "/api/desk", Route: "/api/desk",
				Status: http.StatusOK, RequestID: "r1", Duration: time.Millisecond,
			},
			wantLevel: "level=INFO",
			wantAttrs: []string{"status=200", "route=/api/desk", "request_id=r1", "http_method=GET"},
		},
		{
			name: "服务器错误提升为 warn",
			ex: deskweb.Exchange{
				Method: http.MethodPost, Path: "/api/desk/height", Route: "/api/desk/height",
				Status: http.StatusInternalServerError, Err: errors.New("boom"),
			},
			wantLevel: "level=WARN",
			wantAttrs: []string{"status=500", "error=boom"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			b := InitObserverBuilder(slog.New(slog.NewTextHandler(&buf, nil)))
			b.Observe(context.Background(), &tc.ex)
			assert.Contains(t, buf.String(), tc.wantLevel)
			assert.Contains(t, buf.String(), "msg=access")
			for _, attr := range tc.wantAttrs {
				assert.Contains(t, buf.String(), attr)
			}
		})
	}
}

func TestObserverBuilder_WithServer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	obs := InitObserverBuilder(logger).Level(slog.LevelInfo)

	s := deskweb.InitHTTPServer(deskweb.WithLogger(logger), deskweb.WithObservers(obs))
	require.NoError(t, s.AddRoutes(deskweb.Members{
		deskweb.GET("/ping", func(ctx context.Context, _ deskweb.NoArgs) (any, error) { return "pong", nil }),
	}))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", rec.Body.String())
	assert.Contains(t, buf.String(), "route=/ping")
	assert.Contains(t, buf.String(), "request_id="+rec.Header().Get(deskweb.RequestIDHeader))
}
