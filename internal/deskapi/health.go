package deskapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dormoron/deskweb"
)

// HealthStatus 表示服务健康状态
type HealthStatus string

const (
	StatusUp   HealthStatus = "UP"
	StatusDown HealthStatus = "DOWN"
)

type componentStatus struct {
	Status  HealthStatus   `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

type healthResponse struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]componentStatus `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// health 报告桌子是否可用。最近一次移动超时（桌子没能到达目标）时返回 503，
// 直到下一次移动成功。
func (h *handlers) health(ctx context.Context, _ deskweb.NoArgs) (any, error) {
	st := h.desk.Status()
	deskStatus := StatusUp
	details := map[string]any{"height": st.Height, "moving": st.Moving}
	if st.Fault != "" {
		deskStatus = StatusDown
		details["fault"] = st.Fault
	}
	res := healthResponse{
		Status: deskStatus,
		Components: map[string]componentStatus{
			"desk": {
				Status:  deskStatus,
				Details: details,
			},
		},
		Timestamp: time.Now().UTC(),
	}
	code := http.StatusOK
	if deskStatus != StatusUp {
		code = http.StatusServiceUnavailable
	}
	return deskweb.JSON(code, res)
}
