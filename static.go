package deskweb

import (
	"context"
	"net/http"
	"strings"
)

// StaticOption 配置一个静态资源挂载点
type StaticOption func(m *staticMount)

type staticMount struct {
	prefix       string
	dir          string
	cacheControl string
	listing      bool
}

// StaticWithCacheControl 为静态资源响应设置 Cache-Control 头
func StaticWithCacheControl(value string) StaticOption {
	return func(m *staticMount) {
		m.cacheControl = value
	}
}

// StaticWithListing 允许在请求目录时列出目录内容，默认关闭
func StaticWithListing(enabled bool) StaticOption {
	return func(m *staticMount) {
		m.listing = enabled
	}
}

// staticArgs 只声明了路由捕获的文件名，静态挂载不会读取请求体
type staticArgs struct {
	Filename string `param:"filename,positional"`
}

// StaticRoute builds the endpoint serving files under dir at prefix. The route
// is GET prefix/{filename:.*}; the file itself is served by http.FileServer.
func StaticRoute(prefix, dir string, opts ...StaticOption) *Route[staticArgs] {
	m := &staticMount{prefix: "/" + strings.Trim(prefix, "/"), dir: dir}
	for _, opt := range opts {
		opt(m)
	}
	if m.prefix == "/" {
		m.prefix = ""
	}
	resp := Passthrough(http.StripPrefix(m.prefix, m.handler()))
	return GET(m.prefix+"/{filename:.*}", func(ctx context.Context, _ staticArgs) (any, error) {
		return resp, nil
	})
}

func (m *staticMount) handler() http.Handler {
	files := http.FileServer(http.Dir(m.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.listing && (r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/")) {
			http.NotFound(w, r)
			return
		}
		if m.cacheControl != "" {
			w.Header().Set("Cache-Control", m.cacheControl)
		}
		files.ServeHTTP(w, r)
	})
}

// AddStatic mounts dir at prefix in the server's route table.
func (s *HTTPServer) AddStatic(prefix, dir string, opts ...StaticOption) error {
	return s.Register(StaticRoute(prefix, dir, opts...))
}
