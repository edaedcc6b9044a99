package config

import (
	"fmt"
	"time"

	"github.com/dormoron/deskweb/internal/desk"
	"github.com/dormoron/deskweb/logging"
)

// EnvPrefix 是 deskweb 读取的环境变量前缀
const EnvPrefix = "DESKWEB_"

// Settings 是 deskweb 进程的全部配置
type Settings struct {
	Server  ServerSettings  `config:"server"`
	Logging logging.Config  `config:"logging"`
	Static  []StaticMount   `config:"static"`
	Metrics MetricsSettings `config:"metrics"`
	Tracing TracingSettings `config:"tracing"`
	// Modules 是启动时注册的处理函数模块名
	Modules []string    `config:"modules"`
	Desk    desk.Config `config:"desk"`
}

type ServerSettings struct {
	Addr              string        `config:"addr"`
	ReadTimeout       time.Duration `config:"read_timeout"`
	WriteTimeout      time.Duration `config:"write_timeout"`
	IdleTimeout       time.Duration `config:"idle_timeout"`
	ReadHeaderTimeout time.Duration `config:"read_header_timeout"`
	ShutdownTimeout   time.Duration `config:"shutdown_timeout"`
	MaxHeaderBytes    int           `config:"max_header_bytes"`
	MaxBodyBytes      int64         `config:"max_body_bytes"`
	MatchCacheSize    int           `config:"match_cache_size"`
	CertFile          string        `config:"cert_file"`
	KeyFile           string        `config:"key_file"`
	// HTTP3 在配置了证书时额外监听 QUIC
	HTTP3 bool `config:"http3"`
}

// StaticMount 把 Dir 目录挂载到 Prefix 路径下
type StaticMount struct {
	Prefix       string `config:"prefix"`
	Dir          string `config:"dir"`
	CacheControl string `config:"cache_control"`
}

type MetricsSettings struct {
	Enabled   bool   `config:"enabled"`
	Path      string `config:"path"`
	Namespace string `config:"namespace"`
}

type TracingSettings struct {
	Enabled bool `config:"enabled"`
}

// Default 返回未提供配置文件时使用的配置
func Default() Settings {
	return Settings{
		Server: ServerSettings{
			Addr:              ":8080",
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxHeaderBytes:    1 << 20,
			MaxBodyBytes:      10 << 20,
			MatchCacheSize:    1024,
		},
		Logging: logging.DefaultConfig(),
		Static: []StaticMount{
			{Prefix: "/static", Dir: "static"},
		},
		Metrics: MetricsSettings{Enabled: true, Path: "/metrics", Namespace: "deskweb"},
		Modules: []string{"handlers"},
		Desk:    desk.DefaultConfig(),
	}
}

// Decode 把 c 中的配置叠加到默认配置上并校验
func Decode(c Provider) (Settings, error) {
	s := Default()
	if err := c.Unmarshal("", &s); err != nil {
		return s, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Load 读取 file（可以为空）和 DESKWEB_ 环境变量。watch 为真时监听文件变更。
func Load(file string, options ...Option) (*Configuration, Settings, error) {
	opts := []Option{WithEnvPrefix(EnvPrefix)}
	if file != "" {
		opts = append(opts, WithConfigFile(file))
	}
	opts = append(opts, options...)

	c, err := New(opts...)
	if err != nil {
		return nil, Settings{}, err
	}
	s, err := Decode(c)
	if err != nil {
		_ = c.Close()
		return nil, s, err
	}
	return c, s, nil
}

// Validate 检查配置之间的约束
func (s *Settings) Validate() error {
	if err := s.Logging.Validate(); err != nil {
		return err
	}
	if s.Server.Addr == "" {
		return fmt.Errorf("server.addr 不能为空")
	}
	if s.Server.HTTP3 && s.Server.CertFile == "" {
		return fmt.Errorf("server.http3 需要 cert_file 和 key_file")
	}
	if (s.Server.CertFile == "") != (s.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file 与 server.key_file 必须同时设置")
	}
	for _, m := range s.Static {
		if m.Prefix == "" || m.Dir == "" {
			return fmt.Errorf("static 挂载需要 prefix 和 dir")
		}
	}
	if s.Metrics.Enabled && s.Metrics.Path == "" {
		s.Metrics.Path = "/metrics"
	}
	return s.Desk.Validate()
}
