package deskweb

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedHandler(name string) Handler[NoArgs] {
	return func(ctx context.Context, _ NoArgs) (any, error) {
		return name, nil
	}
}

func mustDescribe(t *testing.T, ep Endpoint) *HandlerDescriptor {
	t.Helper()
	desc, err := ep.Describe()
	require.NoError(t, err)
	return desc
}

func TestCompilePattern(t *testing.T) {
	testCases := []struct {
		name    string
		path    string
		wantErr bool
		static  bool
		match   string
		want    map[string]string
		noMatch string
	}{
		{
			name:    "静态路径",
			path:    "/user",
			static:  true,
			match:   "/user",
			noMatch: "/user/1",
		},
		{
			name:    "单段捕获",
			path:    "/user/{id}",
			match:   "/user/42",
			want:    map[string]string{"id": "42"},
			noMatch: "/user/42/profile",
		},
		{
			name:    "正则捕获",
			path:    `/order/{id:\d+}`,
			match:   "/order/100",
			want:    map[string]string{"id": "100"},
			noMatch: "/order/abc",
		},
		{
			name:  "嵌套花括号",
			path:  `/archive/{year:\d{4}}/{slug}`,
			match: "/archive/2024/hello",
			want:  map[string]string{"year": "2024", "slug": "hello"},
		},
		{
			name:  "通配捕获",
			path:  "/static/{filename:.*}",
			match: "/static/css/app.css",
			want:  map[string]string{"filename": "css/app.css"},
		},
		{
			name:    "元字符被转义",
			path:    "/file.json/{id}",
			match:   "/file.json/1",
			want:    map[string]string{"id": "1"},
			noMatch: "/fileXjson/1",
		},
		{
			name:    "空路径",
			path:    "",
			wantErr: true,
		},
		{
			name:    "不以/开头",
			path:    "user/{id}",
			wantErr: true,
		},
		{
			name:    "未闭合的花括号",
			path:    "/user/{id",
			wantErr: true,
		},
		{
			name:    "多余的右花括号",
			path:    "/user/id}",
			wantErr: true,
		},
		{
			name:    "非法捕获名",
			path:    "/user/{1id}",
			wantErr: true,
		},
		{
			name:    "非法正则",
			path:    "/user/{id:[}",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := compilePattern(tc.path)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.static, p.static)

			captures, ok := p.match(tc.match)
			require.True(t, ok)
			assert.Equal(t, tc.want, captures)

			if tc.noMatch != "" {
				_, ok = p.match(tc.noMatch)
				assert.False(t, ok)
			}
		})
	}
}

func TestRouteTable_FindRoute(t *testing.T) {
	rt := NewRouteTable(nil, 0)
	routes := []Endpoint{
		GET("/", namedHandler("root")),
		GET("/user", namedHandler("user")),
		GET("/user/{id}", namedHandler("user-id")),
		GET("/user/me", namedHandler("user-me")),
		GET("/user/{id}/profile", namedHandler("profile")),
		POST("/user", namedHandler("create")),
	}
	for _, r := range routes {
		require.NoError(t, rt.Register(mustDescribe(t, r)))
	}

	testCases := []struct {
		name      string
		method    string
		path      string
		wantFound bool
		wantRoute string
		wantCaps  map[string]string
	}{
		{name: "根路径", method: http.MethodGet, path: "/", wantFound: true, wantRoute: "/"},
		{name: "静态路径", method: http.MethodGet, path: "/user", wantFound: true, wantRoute: "/user"},
		{name: "静态优先于捕获", method: http.MethodGet, path: "/user/me", wantFound: true, wantRoute: "/user/me"},
		{
			name: "捕获参数", method: http.MethodGet, path: "/user/7", wantFound: true,
			wantRoute: "/user/{id}", wantCaps: map[string]string{"id": "7"},
		},
		{
			name: "多级捕获", method: http.MethodGet, path: "/user/7/profile", wantFound: true,
			wantRoute: "/user/{id}/profile", wantCaps: map[string]string{"id": "7"},
		},
		{name: "HEAD 回退到 GET", method: http.MethodHead, path: "/user", wantFound: true, wantRoute: "/user"},
		{name: "方法不同", method: http.MethodPost, path: "/user", wantFound: true, wantRoute: "/user"},
		{name: "不存在", method: http.MethodGet, path: "/order", wantFound: false},
		{name: "方法不存在", method: http.MethodDelete, path: "/user", wantFound: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mi, ok := rt.findRoute(tc.method, tc.path)
			assert.Equal(t, tc.wantFound, ok)
			if !tc.wantFound {
				return
			}
			assert.Equal(t, tc.wantRoute, mi.route)
			assert.Equal(t, tc.wantCaps, mi.captures)
		})
	}
}

func TestRouteTable_LastRegistrationWins(t *testing.T) {
	rt := NewRouteTable(nil, 0)
	require.NoError(t, rt.Register(mustDescribe(t, GET("/x", namedHandler("A")))))
	require.NoError(t, rt.Register(mustDescribe(t, GET("/x", namedHandler("B")))))
	assert.Equal(t, 1, rt.Len())

	mi, ok := rt.findRoute(http.MethodGet, "/x")
	require.True(t, ok)
	resp, err := mi.handler.Handle(context.Background(), &Request{Request: httpRequest(t, http.MethodGet, "/x", nil)})
	require.NoError(t, err)
	assert.Equal(t, "B", string(resp.Body))
}

func TestRouteTable_InvalidPattern(t *testing.T) {
	rt := NewRouteTable(nil, 0)
	err := rt.Register(mustDescribe(t, GET("/user/{id", namedHandler("bad"))))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "/user/{id", cfgErr.Path)
	assert.Equal(t, 0, rt.Len())
}

func TestRouteTable_Frozen(t *testing.T) {
	rt := NewRouteTable(nil, 0)
	require.NoError(t, rt.Register(mustDescribe(t, GET("/user/{id}", namedHandler("user")))))
	rt.Freeze()
	assert.True(t, rt.Frozen())

	assert.Panics(t, func() {
		_ = rt.Register(mustDescribe(t, GET("/late", namedHandler("late"))))
	})

	first, ok := rt.findRoute(http.MethodGet, "/user/1")
	require.True(t, ok)
	assert.Equal(t, 1, rt.cache.Len())

	// 第二次命中缓存，返回同一个结果
	second, ok := rt.findRoute(http.MethodGet, "/user/1")
	require.True(t, ok)
	assert.Same(t, first, second)

	_, ok = rt.findRoute(http.MethodGet, "/missing")
	assert.False(t, ok)
	assert.Equal(t, 1, rt.cache.Len())
}

func TestRouteTable_CacheBounded(t *testing.T) {
	rt := NewRouteTable(nil, 2)
	require.NoError(t, rt.Register(mustDescribe(t, GET("/user/{id}", namedHandler("user")))))
	rt.Freeze()

	for _, p := range []string{"/user/1", "/user/2", "/user/3"} {
		_, ok := rt.findRoute(http.MethodGet, p)
		require.True(t, ok)
	}
	assert.Equal(t, 2, rt.cache.Len())
	assert.False(t, rt.cache.Contains(routeKey{method: http.MethodGet, path: "/user/1"}))
}

func TestRouteTable_AllowedMethods(t *testing.T) {
	rt := NewRouteTable(nil, 0)
	require.NoError(t, rt.Register(mustDescribe(t, POST("/item/{id}", namedHandler("post")))))
	require.NoError(t, rt.Register(mustDescribe(t, GET("/item/{id}", namedHandler("get")))))

	assert.Equal(t, []string{http.MethodGet, http.MethodPost}, rt.allowedMethods("/item/1"))
	assert.Empty(t, rt.allowedMethods("/other"))
}

func TestRouteTable_Routes(t *testing.T) {
	rt := NewRouteTable(nil, 0)
	require.NoError(t, rt.Register(mustDescribe(t, GET("/b", namedHandler("b")))))
	require.NoError(t, rt.Register(mustDescribe(t, GET("/a", namedHandler("a")))))

	routes := rt.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "/b", routes[0].Path)
	assert.Equal(t, "/a", routes[1].Path)
}
