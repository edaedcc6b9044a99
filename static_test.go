package deskweb

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "site.css"), []byte("body{}"), 0o644))
	return dir
}

func TestHTTPServer_AddStatic(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.NoError(t, s.AddStatic("static/", staticDir(t), StaticWithCacheControl("max-age=60")))

	testCases := []struct {
		name     string
		method   string
		target   string
		wantCode int
		wantBody string
	}{
		{name: "文件", method: http.MethodGet, target: "/static/app.js", wantCode: http.StatusOK, wantBody: "console.log(1)"},
		{name: "子目录文件", method: http.MethodGet, target: "/static/css/site.css", wantCode: http.StatusOK, wantBody: "body{}"},
		{name: "不存在", method: http.MethodGet, target: "/static/missing.js", wantCode: http.StatusNotFound},
		{name: "目录不列出", method: http.MethodGet, target: "/static/css/", wantCode: http.StatusNotFound},
		{name: "前缀本身", method: http.MethodGet, target: "/static/", wantCode: http.StatusNotFound},
		{name: "只允许 GET", method: http.MethodPost, target: "/static/app.js", wantCode: http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(tc.method, tc.target, nil))
			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, rec.Body.String())
				assert.Equal(t, "max-age=60", rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestHTTPServer_AddStaticListing(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.NoError(t, s.AddStatic("/assets", staticDir(t), StaticWithListing(true)))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/assets/css/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "site.css")
}

func TestStaticRoute_Path(t *testing.T) {
	testCases := []struct {
		prefix   string
		wantPath string
	}{
		{prefix: "static", wantPath: "/static/{filename:.*}"},
		{prefix: "/static/", wantPath: "/static/{filename:.*}"},
		{prefix: "/", wantPath: "/{filename:.*}"},
		{prefix: "", wantPath: "/{filename:.*}"},
	}
	for _, tc := range testCases {
		t.Run(tc.prefix, func(t *testing.T) {
			desc := mustDescribe(t, StaticRoute(tc.prefix, "."))
			assert.Equal(t, http.MethodGet, desc.Method)
			assert.Equal(t, tc.wantPath, desc.Path)
		})
	}
}
