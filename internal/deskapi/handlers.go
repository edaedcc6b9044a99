// Package deskapi 是 deskweb 注册的 "handlers" 模块：桌子的 HTTP 接口和高度推送。
package deskapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/dormoron/deskweb"
	"github.com/dormoron/deskweb/internal/desk"
)

const indexPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>desk</title></head>
<body>
<h1>desk</h1>
<p><a href="/api/desk/sit">sit</a> | <a href="/api/desk/stand">stand</a></p>
<pre id="height"></pre>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (e) => { document.getElementById("height").textContent = e.data; };
</script>
</body>
</html>
`

type handlers struct {
	desk *desk.Desk
	log  *slog.Logger
}

// Handlers 返回桌子接口的全部路由
func Handlers(d *desk.Desk, logger *slog.Logger) deskweb.Members {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{desk: d, log: logger}
	return deskweb.Members{
		deskweb.GET("/", h.index),
		deskweb.GET("/desk", h.legacyIndex),
		deskweb.GET("/health", h.health),
		deskweb.GET("/api/desk", h.status),
		deskweb.GET("/api/desk/stand", h.stand),
		deskweb.GET("/api/desk/sit", h.sit),
		deskweb.POST("/api/desk/stop", h.stop),
		deskweb.GET("/api/desk/presets", h.presets),
		deskweb.POST("/api/desk/presets/{name}", h.savePreset),
		deskweb.GET("/api/desk/{position}", h.moveToPosition),
		deskweb.POST("/api/desk/height", h.moveToHeight),
		deskweb.PassthroughRoute(http.MethodGet, "/ws", NewFeed(d, DefaultFeedConfig(), logger)),
	}
}

func (h *handlers) index(ctx context.Context, _ deskweb.NoArgs) (any, error) {
	return indexPage, nil
}

func (h *handlers) legacyIndex(ctx context.Context, _ deskweb.NoArgs) (any, error) {
	return "redirect:/", nil
}

func (h *handlers) status(ctx context.Context, _ deskweb.NoArgs) (any, error) {
	return h.desk.Status(), nil
}

func (h *handlers) stand(ctx context.Context, _ deskweb.NoArgs) (any, error) {
	return h.moveToPreset(ctx, desk.PresetStand)
}

func (h *handlers) sit(ctx context.Context, _ deskweb.NoArgs) (any, error) {
	return h.moveToPreset(ctx, desk.PresetSit)
}

func (h *handlers) stop(ctx context.Context, _ deskweb.NoArgs) (any, error) {
	h.desk.Stop()
	return h.desk.Status(), nil
}

type positionArgs struct {
	Position string `param:"position,positional"`
}

func (h *handlers) moveToPosition(ctx context.Context, in positionArgs) (any, error) {
	return h.moveToPreset(ctx, in.Position)
}

func (h *handlers) moveToPreset(ctx context.Context, name string) (any, error) {
	if _, err := h.desk.MoveToPreset(ctx, name); err != nil {
		return nil, deskError(err)
	}
	return h.desk.Status(), nil
}

type heightArgs struct {
	Height int `param:"height"`
}

func (h *handlers) moveToHeight(ctx context.Context, in heightArgs) (any, error) {
	if err := h.desk.MoveTo(ctx, in.Height); err != nil {
		return nil, deskError(err)
	}
	return h.desk.Status(), nil
}

// presetQuery 接收查询串里的任意过滤条件，目前识别 min 和 max
type presetQuery struct {
	Filter map[string]string `param:",remain"`
}

type preset struct {
	Name   string `json:"name"`
	Height int    `json:"height"`
}

func (h *handlers) presets(ctx context.Context, in presetQuery) (any, error) {
	lower, upper := 0, int(^uint(0)>>1)
	for key, bound := range map[string]*int{"min": &lower, "max": &upper} {
		raw, ok := in.Filter[key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, deskweb.ErrValueInvalid(key, "must be an integer")
		}
		*bound = v
	}

	res := make([]preset, 0)
	for name, height := range h.desk.Presets() {
		if height >= lower && height <= upper {
			res = append(res, preset{Name: name, Height: height})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

type savePresetArgs struct {
	Name    string        `param:"name,positional"`
	Request *http.Request `param:"request"`
	Height  int           `param:"height"`
}

func (h *handlers) savePreset(ctx context.Context, in savePresetArgs) (any, error) {
	if err := h.desk.SetPreset(in.Name, in.Height); err != nil {
		return nil, deskError(err)
	}
	h.log.Info("preset saved",
		slog.String("preset", in.Name),
		slog.Int("height", in.Height),
		slog.String("remote", in.Request.RemoteAddr))

	resp, err := deskweb.JSON(http.StatusCreated, preset{Name: in.Name, Height: in.Height})
	if err != nil {
		return nil, err
	}
	resp.Header.Set("Location", "/api/desk/"+in.Name)
	return resp, nil
}

// deskError 把桌子的错误转换为接口错误，未知错误原样交给服务器
func deskError(err error) error {
	switch {
	case errors.Is(err, desk.ErrOutOfRange):
		return deskweb.ErrValueInvalid("height", err.Error())
	case errors.Is(err, desk.ErrUnknownPreset):
		return deskweb.ErrResourceNotFound("preset")
	case errors.Is(err, desk.ErrBusy):
		return deskweb.ErrConflict("desk is moving")
	case errors.Is(err, desk.ErrStopped):
		return deskweb.NewAPIError(http.StatusConflict, "desk:stopped", nil, "movement stopped")
	case errors.Is(err, desk.ErrTimeout):
		return deskweb.NewAPIError(http.StatusGatewayTimeout, "desk:timeout", nil, "movement timed out")
	default:
		return err
	}
}
