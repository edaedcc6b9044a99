package deskweb

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go/http3"
)

// RequestIDHeader 携带请求ID，客户端提供时沿用，否则由服务器生成
const RequestIDHeader = "X-Request-ID"

// statusClientClosedRequest 记录客户端在处理完成前断开的请求，不会写回客户端
const statusClientClosedRequest = 499

// Exchange 描述一次已经完成的请求，交给各个观察者记录
type Exchange struct {
	Method    string
	Path      string
	Host      string
	Route     string
	RequestID string
	Status    int
	Duration  time.Duration
	// Err 是传到服务器故障边界的错误，包括恢复的 panic
	Err error
}

// Observer 观察每个请求的开始与结束，用于访问日志、指标和链路追踪。
//
// Begin 在路由匹配之前调用，可以返回派生的 context；Observe 在响应写出之后调用，
// 调用顺序与 Begin 相反。
type Observer interface {
	Begin(ctx context.Context, r *http.Request) context.Context
	Observe(ctx context.Context, ex *Exchange)
}

// HTTPServerOption 用于配置 HTTPServer 的函数选项
type HTTPServerOption func(server *HTTPServer)

// HTTPServer 持有路由表并作为 http.Handler 服务请求。
//
// 注册阶段（AddRoutes、AddModule、AddStatic、Passthrough）必须在 Start 之前单线程完成，
// Start 会冻结路由表，之后的查找不需要加锁。
type HTTPServer struct {
	routes       *RouteTable
	log          *slog.Logger
	loader       Loader
	observers    []Observer
	maxBodyBytes int64
	cacheSize    int
	httpServer   *http.Server
	http3        *http3.Server
}

// ServerConfig 定义HTTP服务器的配置选项
type ServerConfig struct {
	ReadTimeout       time.Duration // 读取整个请求的超时时间
	WriteTimeout      time.Duration // 写入响应的超时时间
	IdleTimeout       time.Duration // 连接空闲超时时间
	ReadHeaderTimeout time.Duration // 读取请求头的超时时间
	MaxHeaderBytes    int           // 请求头的最大字节数
	MaxBodyBytes      int64         // 请求体的最大字节数，0 表示不限制
}

// DefaultServerConfig 返回默认的服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,  // 1MB
		MaxBodyBytes:      10 << 20, // 10MB
	}
}

// WithServerConfig 设置HTTP服务器配置
func WithServerConfig(config ServerConfig) HTTPServerOption {
	return func(s *HTTPServer) {
		s.httpServer.ReadTimeout = config.ReadTimeout
		s.httpServer.WriteTimeout = config.WriteTimeout
		s.httpServer.IdleTimeout = config.IdleTimeout
		s.httpServer.ReadHeaderTimeout = config.ReadHeaderTimeout
		s.httpServer.MaxHeaderBytes = config.MaxHeaderBytes
		s.maxBodyBytes = config.MaxBodyBytes
	}
}

// WithLogger 设置服务器和所有适配器使用的日志
func WithLogger(logger *slog.Logger) HTTPServerOption {
	return func(s *HTTPServer) {
		s.log = logger
	}
}

// WithLoader 设置 AddModule 使用的模块加载器
func WithLoader(loader Loader) HTTPServerOption {
	return func(s *HTTPServer) {
		s.loader = loader
	}
}

// WithObservers 追加请求观察者
func WithObservers(observers ...Observer) HTTPServerOption {
	return func(s *HTTPServer) {
		s.observers = append(s.observers, observers...)
	}
}

// WithMatchCacheSize 设置路由匹配缓存的容量
func WithMatchCacheSize(size int) HTTPServerOption {
	return func(s *HTTPServer) {
		s.cacheSize = size
	}
}

// InitHTTPServer 创建服务器。选项按顺序应用，未设置的部分使用默认值。
func InitHTTPServer(opts ...HTTPServerOption) *HTTPServer {
	cfg := DefaultServerConfig()
	res := &HTTPServer{
		log: slog.Default(),
		httpServer: &http.Server{
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(res)
	}
	if res.log == nil {
		res.log = slog.Default()
	}
	res.routes = NewRouteTable(res.log, res.cacheSize)
	res.httpServer.Handler = res
	res.httpServer.ErrorLog = slog.NewLogLogger(res.log.Handler(), slog.LevelWarn)
	return res
}

// RouteTable exposes the server's route table.
func (s *HTTPServer) RouteTable() *RouteTable {
	return s.routes
}

// Freeze ends registration. Start calls it; tests serving through ServeHTTP
// directly may call it to exercise the match cache.
func (s *HTTPServer) Freeze() {
	s.routes.Freeze()
}

// ServeHTTP 是处理HTTP请求的主要入口点，也是处理函数错误和 panic 的故障边界。
func (s *HTTPServer) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	start := time.Now()

	reqID := request.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	writer.Header().Set(RequestIDHeader, reqID)
	if s.maxBodyBytes > 0 && request.Body != nil {
		request.Body = http.MaxBytesReader(writer, request.Body, s.maxBodyBytes)
	}

	ctx := request.Context()
	for _, o := range s.observers {
		ctx = o.Begin(ctx, request)
	}
	request = request.WithContext(ctx)

	sw := &statusWriter{ResponseWriter: writer}
	ex := &Exchange{
		Method:    request.Method,
		Path:      request.URL.Path,
		Host:      request.Host,
		RequestID: reqID,
	}

	defer func() {
		if p := recover(); p != nil {
			ex.Err = fmt.Errorf("panic: %v", p)
			s.log.Error("handler panicked",
				slog.String("request_id", reqID),
				slog.String("method", ex.Method),
				slog.String("route", ex.Route),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			if !sw.wroteHeader && !sw.hijacked {
				http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}
		if ex.Status == 0 {
			ex.Status = sw.Status()
		}
		ex.Duration = time.Since(start)
		for i := len(s.observers) - 1; i >= 0; i-- {
			s.observers[i].Observe(ctx, ex)
		}
	}()

	mi, resp := s.lookup(request)
	var err error
	if mi != nil {
		// 在调用处理函数之前记录路由，panic 时观察者也能拿到
		ex.Route = mi.route
		resp, err = mi.handler.Handle(ctx, &Request{Request: request, Captures: mi.captures})
	}
	if err != nil {
		ex.Err = err
		if ctx.Err() != nil {
			s.log.Debug("request abandoned",
				slog.String("request_id", reqID), slog.String("route", ex.Route), slog.Any("error", err))
			ex.Status = statusClientClosedRequest
			return
		}
		s.log.Error("unhandled handler error",
			slog.String("request_id", reqID),
			slog.String("method", ex.Method),
			slog.String("route", ex.Route),
			slog.Any("error", err))
		http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err = resp.Write(sw, request); err != nil {
		s.log.Warn("写入响应失败", slog.String("request_id", reqID), slog.Any("error", err))
	}
}

// Dispatch resolves r against the route table and runs the matched adapter.
// Unmatched requests produce 404, or 405 with an Allow header when the path
// is served under other methods. Errors are those the handler did not turn
// into a response.
func (s *HTTPServer) Dispatch(ctx context.Context, r *http.Request) (*Response, error) {
	mi, resp := s.lookup(r)
	if mi == nil {
		return resp, nil
	}
	return mi.handler.Handle(ctx, &Request{Request: r, Captures: mi.captures})
}

// lookup 返回匹配到的路由；没有匹配时返回 404 或带 Allow 头的 405 响应
func (s *HTTPServer) lookup(r *http.Request) (*matchInfo, *Response) {
	mi, ok := s.routes.findRoute(r.Method, r.URL.Path)
	if ok {
		return mi, nil
	}
	if allowed := s.routes.allowedMethods(r.URL.Path); len(allowed) > 0 {
		resp := textResponse(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		resp.Header.Set("Allow", strings.Join(allowed, ", "))
		return nil, resp
	}
	return nil, textResponse(http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

// Start 冻结路由表并在 addr 上开始服务，直到 Shutdown 被调用
func (s *HTTPServer) Start(addr string) error {
	s.Freeze()
	s.httpServer.Addr = addr

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("server listening", slog.String("addr", l.Addr().String()), slog.Int("routes", s.routes.Len()))
	return s.httpServer.Serve(l)
}

// StartTLS 与 Start 相同，但使用 TLS
func (s *HTTPServer) StartTLS(addr, certFile, keyFile string) error {
	s.Freeze()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.httpServer.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"h2", "http/1.1"}, // 支持HTTP/2和HTTP/1.1
	}
	s.httpServer.Addr = addr
	s.log.Info("server listening (tls)", slog.String("addr", listener.Addr().String()), slog.Int("routes", s.routes.Len()))
	return s.httpServer.ServeTLS(listener, certFile, keyFile)
}

// Shutdown 优雅关闭服务器
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return errors.Join(s.shutdownHTTP3(ctx), s.httpServer.Shutdown(ctx))
}

// statusWriter 记录写出的状态码，并保留 Hijack 和 Flush 能力供 websocket 与流式响应使用
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	hijacked    bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		w.hijacked = true
	}
	return conn, rw, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Status 返回写出的状态码；升级为 websocket 的连接记为 101
func (w *statusWriter) Status() int {
	switch {
	case w.hijacked:
		return http.StatusSwitchingProtocols
	case w.wroteHeader:
		return w.status
	default:
		return http.StatusOK
	}
}
