// Package config 提供统一的配置管理：配置文件、环境变量覆盖和文件变更监听
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// envLevelSeparator 分隔环境变量中的层级，DESKWEB_SERVER__ADDR 对应 server.addr
const envLevelSeparator = "__"

// Provider 定义配置提供者接口
type Provider interface {
	// Get 获取配置项的值，key 使用点号分隔层级
	Get(key string) (any, bool)

	// GetString 获取字符串配置
	GetString(key string) string

	// Has 检查配置项是否存在
	Has(key string) bool

	// AddChangeListener 添加配置变更监听器
	AddChangeListener(listener func(key string))

	// Unmarshal 将配置反序列化到结构体，key 为空时解码全部配置
	Unmarshal(key string, v any) error
}

var _ Provider = &Configuration{}

// Configuration 是配置管理器的实现
type Configuration struct {
	data       map[string]any
	envPrefix  string
	configFile string
	fileFormat string
	watch      bool
	log        *slog.Logger

	watcher   *fsnotify.Watcher
	listeners []func(string)

	mu sync.RWMutex
}

// Option 配置选项函数类型
type Option func(*Configuration)

// WithEnvPrefix 设置环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(c *Configuration) {
		c.envPrefix = prefix
	}
}

// WithConfigFile 设置配置文件路径，并根据扩展名检测格式
func WithConfigFile(file string) Option {
	return func(c *Configuration) {
		c.configFile = file

		switch strings.ToLower(filepath.Ext(file)) {
		case ".yaml", ".yml":
			c.fileFormat = "yaml"
		case ".json":
			c.fileFormat = "json"
		case ".toml":
			c.fileFormat = "toml"
		default:
			c.fileFormat = "unknown"
		}
	}
}

// WithFormat 明确设置配置文件格式
func WithFormat(format string) Option {
	return func(c *Configuration) {
		c.fileFormat = format
	}
}

// WithWatch 监听配置文件变更并重新加载
func WithWatch(enabled bool) Option {
	return func(c *Configuration) {
		c.watch = enabled
	}
}

// WithLogger 设置记录重新加载失败等事件的日志
func WithLogger(logger *slog.Logger) Option {
	return func(c *Configuration) {
		c.log = logger
	}
}

// New 创建一个新的配置管理器并加载配置
func New(options ...Option) (*Configuration, error) {
	config := &Configuration{
		data: make(map[string]any),
		log:  slog.Default(),
	}
	for _, option := range options {
		option(config)
	}

	if err := config.Load(); err != nil {
		return nil, err
	}

	if config.watch && config.configFile != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("无法创建文件监视器: %w", err)
		}
		if err = watcher.Add(filepath.Dir(config.configFile)); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("无法监视配置文件: %w", err)
		}
		config.watcher = watcher
		go config.watchConfigFile()
	}
	return config, nil
}

// Load 重新加载配置。环境变量优先级高于配置文件。
func (c *Configuration) Load() error {
	data := make(map[string]any)
	if c.configFile != "" {
		fileData, err := c.loadConfigFile()
		if err != nil {
			return err
		}
		for k, v := range fileData {
			data[strings.ToLower(k)] = v
		}
	}
	c.loadEnvironmentVariables(data)

	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
	return nil
}

func (c *Configuration) loadConfigFile() (map[string]any, error) {
	raw, err := os.ReadFile(c.configFile)
	if err != nil {
		if os.IsNotExist(err) {
			// 配置文件不存在时只使用默认值和环境变量
			return nil, nil
		}
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config map[string]any
	switch c.fileFormat {
	case "yaml":
		if err = yaml.Unmarshal(raw, &config); err != nil {
			return nil, fmt.Errorf("无法解析YAML配置文件: %w", err)
		}
	case "json":
		if err = json.Unmarshal(raw, &config); err != nil {
			return nil, fmt.Errorf("无法解析JSON配置文件: %w", err)
		}
	case "toml":
		if err = toml.Unmarshal(raw, &config); err != nil {
			return nil, fmt.Errorf("无法解析TOML配置文件: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s", c.fileFormat)
	}
	return config, nil
}

// loadEnvironmentVariables 把带前缀的环境变量写入 data，层级用双下划线分隔
func (c *Configuration) loadEnvironmentVariables(data map[string]any) {
	if c.envPrefix == "" {
		return
	}
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, c.envPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, c.envPrefix))
		if key == "" {
			continue
		}
		setPath(data, strings.Split(key, envLevelSeparator), value)
	}
}

func setPath(data map[string]any, path []string, value any) {
	current := data
	for _, part := range path[:len(path)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

// watchConfigFile 监视配置文件变更
func (c *Configuration) watchConfigFile() {
	target := filepath.Clean(c.configFile)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			// 只关心配置文件的写入和创建事件
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(event.Name) != target {
				continue
			}
			if err := c.Load(); err != nil {
				c.log.Warn("重新加载配置文件失败", slog.String("file", c.configFile), slog.Any("error", err))
				continue
			}
			c.log.Info("配置文件已重新加载", slog.String("file", c.configFile))
			c.notifyListeners("")

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn("配置文件监视错误", slog.Any("error", err))
		}
	}
}

func (c *Configuration) notifyListeners(key string) {
	c.mu.RLock()
	listeners := make([]func(string), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, listener := range listeners {
		listener(key)
	}
}

// Get 获取配置值
func (c *Configuration) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := c.data
	parts := strings.Split(strings.ToLower(key), ".")
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if current, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

// GetString 获取字符串配置
func (c *Configuration) GetString(key string) string {
	value, ok := c.Get(key)
	if !ok {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", value)
}

// Has 检查配置项是否存在
func (c *Configuration) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set 设置配置值并通知监听器
func (c *Configuration) Set(key string, value any) {
	c.mu.Lock()
	setPath(c.data, strings.Split(strings.ToLower(key), "."), value)
	c.mu.Unlock()

	c.notifyListeners(key)
}

// AddChangeListener 添加配置变更监听器
func (c *Configuration) AddChangeListener(listener func(key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, listener)
}

// Unmarshal 将配置反序列化到结构体。字符串会被弱类型转换，时长支持 "5s" 这样的写法。
func (c *Configuration) Unmarshal(key string, v any) error {
	var value any
	if key == "" {
		c.mu.RLock()
		value = c.data
		defer c.mu.RUnlock()
	} else {
		var ok bool
		if value, ok = c.Get(key); !ok {
			return fmt.Errorf("配置键不存在: %s", key)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "config",
		WeaklyTypedInput: true,
		// 切片和 map 整体替换默认值，不与默认值逐项合并
		ZeroFields: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("创建解码器失败: %w", err)
	}
	return decoder.Decode(value)
}

// Close 关闭配置管理器，释放资源
func (c *Configuration) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
