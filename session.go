package floodtiles

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wgdzlh/floodtiles/log"

	"go.uber.org/zap"
)

const (
	BasemapReady       = "ready"
	BasemapUnavailable = "unavailable"

	basemapCheckTimeout = 5 * time.Second
)

// 底图可用状态，不可用时附原因
type BasemapStatus struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (s BasemapStatus) Ready() bool {
	return s.State == BasemapReady
}

// 服务启动时一次性构建的只读上下文
type Session struct {
	Center      MapCenter     `json:"center"`
	Basemap     BasemapStatus `json:"basemap"`
	WatershedID *int64        `json:"watershed_id"`
	Layers      []Layer       `json:"layers"`
}

type SessionParams struct {
	InputPath   string
	BasemapURL  string // 形如 https://host/{z}/{x}/{y}.png
	WatershedID *int64
}

func (g *Toolbox) NewSession(ctx context.Context, p SessionParams, tiler *Tiler) *Session {
	s := &Session{WatershedID: p.WatershedID}
	if b, err := g.ImageBounds(p.InputPath); err != nil {
		log.Warn(g.logTag+"input bounds unavailable, use default center", zap.Error(err))
		s.Center = CenterOf(nil)
	} else {
		s.Center = CenterOf(&b)
	}
	s.Basemap = CheckBasemap(ctx, p.BasemapURL)
	if !s.Basemap.Ready() {
		log.Warn(g.logTag+"basemap unavailable", zap.String("reason", s.Basemap.Reason))
	}
	if tiler != nil {
		s.Layers = tiler.Layers()
	}
	log.Info(g.logTag+"session ready", zap.Float64("lat", s.Center.Lat), zap.Float64("lon", s.Center.Lon),
		zap.Int("zoom", s.Center.Zoom), zap.String("basemap", s.Basemap.State))
	return s
}

// 请求底图的0/0/0瓦片判断其可用性
func CheckBasemap(ctx context.Context, url string) BasemapStatus {
	if url == "" {
		return BasemapStatus{State: BasemapUnavailable, Reason: "basemap url not configured"}
	}
	r := strings.NewReplacer("{z}", "0", "{x}", "0", "{y}", "0")
	ctx, cancel := context.WithTimeout(ctx, basemapCheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Replace(url), nil)
	if err != nil {
		return BasemapStatus{State: BasemapUnavailable, Reason: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return BasemapStatus{State: BasemapUnavailable, Reason: err.Error()}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BasemapStatus{State: BasemapUnavailable, Reason: fmt.Sprintf("basemap responded %d", resp.StatusCode)}
	}
	return BasemapStatus{State: BasemapReady}
}
