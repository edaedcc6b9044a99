// Package desk 模拟一张可升降桌。高度以毫米为单位，移动按固定步长逐步进行，
// 期间的每个高度都会推送给订阅者。
package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/atomic"
)

const (
	// BaseHeight 和 MaxHeight 是桌面的最低与最高高度（毫米）
	BaseHeight = 620
	MaxHeight  = 1270

	PresetSit   = "position_1"
	PresetStand = "position_2"
	PresetHigh  = "position_3"

	moveLockKey = "move"
)

var (
	ErrOutOfRange    = errors.New("desk: 目标高度超出范围")
	ErrBusy          = errors.New("desk: 桌子正在移动")
	ErrUnknownPreset = errors.New("desk: 预设不存在")
	ErrStopped       = errors.New("desk: 移动被中止")
	ErrTimeout       = errors.New("desk: 移动超时")
)

// Config 描述桌子的物理参数和预设高度
type Config struct {
	BaseHeight int            `config:"base_height"`
	MaxHeight  int            `config:"max_height"`
	Presets    map[string]int `config:"presets"`
	// Tolerance 是认为已经到达目标的误差（毫米）
	Tolerance int `config:"tolerance"`
	// Step 是每个 Tick 移动的毫米数
	Step            int           `config:"step"`
	Tick            time.Duration `config:"tick"`
	MovementTimeout time.Duration `config:"movement_timeout"`
}

func DefaultConfig() Config {
	return Config{
		BaseHeight: BaseHeight,
		MaxHeight:  MaxHeight,
		Presets: map[string]int{
			PresetSit:   BaseHeight + 80,
			PresetStand: BaseHeight + 430,
			PresetHigh:  BaseHeight + 530,
		},
		Tolerance:       0,
		Step:            25,
		Tick:            200 * time.Millisecond,
		MovementTimeout: 30 * time.Second,
	}
}

// Validate 检查高度范围和预设
func (c *Config) Validate() error {
	if c.BaseHeight <= 0 || c.MaxHeight <= c.BaseHeight {
		return fmt.Errorf("desk: 高度范围非法 [%d, %d]", c.BaseHeight, c.MaxHeight)
	}
	if c.Step <= 0 || c.Tick <= 0 || c.MovementTimeout <= 0 {
		return fmt.Errorf("desk: step、tick 和 movement_timeout 必须大于 0")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("desk: tolerance 不能为负")
	}
	for name, h := range c.Presets {
		if h < c.BaseHeight || h > c.MaxHeight {
			return fmt.Errorf("%w: 预设 %s=%d", ErrOutOfRange, name, h)
		}
	}
	return nil
}

// Status 是桌子某一时刻的状态
type Status struct {
	Height  int            `json:"height"`
	Target  int            `json:"target"`
	Moving  bool           `json:"moving"`
	Min     int            `json:"min"`
	Max     int            `json:"max"`
	Presets map[string]int `json:"presets"`
	// Fault 是最近一次移动超时的原因，之后成功到达目标时清除
	Fault string `json:"fault,omitempty"`
}

// Desk 是一张模拟的升降桌，可以被多个请求并发使用。
// 同一时刻只允许一次移动，移动锁带有过期时间，异常退出的移动不会永久占用桌子。
type Desk struct {
	cfg Config
	log *slog.Logger

	height *atomic.Int64
	target *atomic.Int64
	moving *atomic.Bool
	stop   *atomic.Bool
	fault  *atomic.Error

	locks *cache.Cache

	mu      sync.RWMutex
	presets map[string]int
	subs    map[int]chan int
	nextSub int
}

// New 创建一张停在最低高度的桌子
func New(cfg Config, logger *slog.Logger) (*Desk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	presets := make(map[string]int, len(cfg.Presets))
	for k, v := range cfg.Presets {
		presets[k] = v
	}
	return &Desk{
		cfg:     cfg,
		log:     logger,
		height:  atomic.NewInt64(int64(cfg.BaseHeight)),
		target:  atomic.NewInt64(int64(cfg.BaseHeight)),
		moving:  atomic.NewBool(false),
		stop:    atomic.NewBool(false),
		fault:   atomic.NewError(nil),
		locks:   cache.New(cfg.MovementTimeout, time.Minute),
		presets: presets,
		subs:    make(map[int]chan int),
	}, nil
}

// Height 返回当前高度
func (d *Desk) Height() int {
	return int(d.height.Load())
}

// Status 返回当前状态
func (d *Desk) Status() Status {
	st := Status{
		Height:  d.Height(),
		Target:  int(d.target.Load()),
		Moving:  d.moving.Load(),
		Min:     d.cfg.BaseHeight,
		Max:     d.cfg.MaxHeight,
		Presets: d.Presets(),
	}
	if err := d.Fault(); err != nil {
		st.Fault = err.Error()
	}
	return st
}

// Fault 返回最近一次移动超时的错误，没有故障时返回 nil
func (d *Desk) Fault() error {
	return d.fault.Load()
}

// Presets 返回预设高度的副本
func (d *Desk) Presets() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res := make(map[string]int, len(d.presets))
	for k, v := range d.presets {
		res[k] = v
	}
	return res
}

// PresetNames 返回排好序的预设名
func (d *Desk) PresetNames() []string {
	presets := d.Presets()
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetPreset 保存或覆盖一个预设高度
func (d *Desk) SetPreset(name string, height int) error {
	if err := d.checkRange(height); err != nil {
		return err
	}
	d.mu.Lock()
	d.presets[name] = height
	d.mu.Unlock()
	return nil
}

// MoveToPreset 移动到名为 name 的预设高度
func (d *Desk) MoveToPreset(ctx context.Context, name string) (int, error) {
	d.mu.RLock()
	h, ok := d.presets[name]
	d.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return h, d.MoveTo(ctx, h)
}

// MoveTo 把桌子移动到 target 并等待移动结束。ctx 结束、Stop 被调用或超过
// MovementTimeout 时桌子停在当前高度并返回错误。
func (d *Desk) MoveTo(ctx context.Context, target int) error {
	if err := d.checkRange(target); err != nil {
		return err
	}
	if err := d.locks.Add(moveLockKey, target, d.cfg.MovementTimeout); err != nil {
		return ErrBusy
	}
	defer d.locks.Delete(moveLockKey)

	d.stop.Store(false)
	d.target.Store(int64(target))
	d.moving.Store(true)
	defer d.moving.Store(false)

	d.log.Info("desk moving", slog.Int("from", d.Height()), slog.Int("to", target))

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, d.cfg.MovementTimeout)
	defer cancel()
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		current := d.Height()
		if abs(target-current) <= d.cfg.Tolerance {
			d.log.Info("desk arrived", slog.Int("height", current))
			d.fault.Store(nil)
			return nil
		}
		select {
		case <-ctx.Done():
			d.log.Warn("desk movement interrupted", slog.Int("height", current), slog.Any("error", ctx.Err()))
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// 只有 MovementTimeout 到期才算桌子故障，调用方自己的超时不算
				if parent.Err() == nil {
					d.fault.Store(fmt.Errorf("%w: 停在 %d，目标 %d", ErrTimeout, current, target))
				}
				return ErrTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
		if d.stop.Load() {
			return ErrStopped
		}
		d.publish(int(d.height.Add(int64(stepToward(current, target, d.cfg.Step)))))
	}
}

// Stop 让正在进行的移动停在当前高度
func (d *Desk) Stop() {
	d.stop.Store(true)
}

// Subscribe 订阅高度变化。返回的函数取消订阅并关闭通道。
// 订阅者处理过慢时会丢弃中间高度，只保证收到最新值。
func (d *Desk) Subscribe() (<-chan int, func()) {
	ch := make(chan int, 8)
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			close(ch)
		})
	}
}

func (d *Desk) publish(height int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.subs {
		select {
		case ch <- height:
		default:
		}
	}
}

func (d *Desk) checkRange(height int) error {
	if height < d.cfg.BaseHeight || height > d.cfg.MaxHeight {
		return fmt.Errorf("%w: %d 不在 [%d, %d] 内", ErrOutOfRange, height, d.cfg.BaseHeight, d.cfg.MaxHeight)
	}
	return nil
}

func stepToward(current, target, step int) int {
	diff := target - current
	switch {
	case diff > step:
		return step
	case diff < -step:
		return -step
	default:
		return diff
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
