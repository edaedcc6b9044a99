package deskweb

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// HTTP3Config 定义HTTP/3监听器的配置选项
type HTTP3Config struct {
	// QUIC配置
	MaxIdleTimeout       time.Duration
	MaxIncomingStreams   int64
	HandshakeIdleTimeout time.Duration
}

// DefaultHTTP3Config 返回默认的HTTP/3配置
func DefaultHTTP3Config() HTTP3Config {
	return HTTP3Config{
		MaxIdleTimeout:       30 * time.Second,
		MaxIncomingStreams:   100,
		HandshakeIdleTimeout: 10 * time.Second,
	}
}

// StartHTTP3 在 addr 上同时监听 TCP (TLS) 和 UDP (QUIC)。TCP 响应带有 Alt-Svc 头，
// 让支持的客户端切换到HTTP/3。两个监听器共用同一张路由表，任何一个退出都会关闭另一个。
func (s *HTTPServer) StartHTTP3(addr, certFile, keyFile string, cfg HTTP3Config) error {
	s.Freeze()

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("加载TLS证书失败: %w", err)
	}
	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}

	quicServer := &http3.Server{
		Addr:      addr,
		Handler:   s,
		TLSConfig: http3.ConfigureTLSConfig(tlsConfig.Clone()),
		QuicConfig: &quic.Config{
			MaxIdleTimeout:       cfg.MaxIdleTimeout,
			MaxIncomingStreams:   cfg.MaxIncomingStreams,
			HandshakeIdleTimeout: cfg.HandshakeIdleTimeout,
		},
	}
	ql, err := quic.ListenAddrEarly(addr, quicServer.TLSConfig, quicServer.QuicConfig)
	if err != nil {
		return fmt.Errorf("启动QUIC监听器失败: %w", err)
	}

	tcp, err := net.Listen("tcp", addr)
	if err != nil {
		_ = ql.Close()
		return err
	}

	s.httpServer.Addr = addr
	s.httpServer.TLSConfig = tlsConfig
	s.httpServer.TLSConfig.NextProtos = []string{"h2", "http/1.1"}
	s.httpServer.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := quicServer.SetQuicHeaders(w.Header()); err != nil {
			s.log.Debug("设置 Alt-Svc 失败", slog.Any("error", err))
		}
		s.ServeHTTP(w, r)
	})
	s.http3 = quicServer

	s.log.Info("server listening (http/3)", slog.String("addr", tcp.Addr().String()), slog.Int("routes", s.routes.Len()))

	errCh := make(chan error, 2)
	go func() { errCh <- quicServer.ServeListener(ql) }()
	go func() { errCh <- s.httpServer.ServeTLS(tcp, "", "") }()

	err = <-errCh
	_ = quicServer.Close()
	_ = s.httpServer.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return http.ErrServerClosed
	}
	return err
}

func (s *HTTPServer) shutdownHTTP3(ctx context.Context) error {
	if s.http3 == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.http3.CloseGracefully(time.Second) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return s.http3.Close()
	}
}
