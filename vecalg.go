package floodtiles

import (
	"github.com/wgdzlh/floodtiles/log"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 合并同一流域的多个要素，返回的新几何需调用方回收
func mergeGeometries(parts []gdal.Geometry) (ret gdal.Geometry) {
	if len(parts) == 1 {
		return parts[0].Clone()
	}
	ret = gdal.Create(gdal.GT_Polygon)
	for _, p := range parts {
		prev := ret
		ret = ret.Union(p)
		prev.Destroy()
	}
	return
}

// 按容差（度）简化轮廓，仅用于前端叠加显示，返回的新几何需调用方回收
func (g *Toolbox) simplify(geo gdal.Geometry) gdal.Geometry {
	t := g.opts.SimplifyTolerance
	if t <= 0 {
		return geo.Clone()
	}
	ret := geo.SimplifyPreservingTopology(t)
	if ret.IsEmpty() {
		// 容差过大时退化为空，保留原始轮廓
		log.Warn(g.logTag+"simplified footprint is empty", zap.Float64("tolerance", t))
		ret.Destroy()
		return geo.Clone()
	}
	return ret
}
