package floodtiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// web墨卡托下整个世界的宽度（米）
const mercatorWorldWidth = 2 * math.Pi * orb.EarthRadius

func PointsToWkt(lon1, lon2, lat1, lat2 float64) string {
	return fmt.Sprintf("POLYGON((%[1]f %[3]f, %[1]f %[4]f, %[2]f %[4]f, %[2]f %[3]f, %[1]f %[3]f))", lon1, lon2, lat1, lat2)
}

// 范围[minX,minY,maxX,maxY]转矩形WKT，保留全部精度
func ExtentToWkt(ext [4]float64) string {
	return fmt.Sprintf("POLYGON((%[1]s %[2]s, %[1]s %[4]s, %[3]s %[4]s, %[3]s %[2]s, %[1]s %[2]s))",
		fmtFloat(ext[0]), fmtFloat(ext[1]), fmtFloat(ext[2]), fmtFloat(ext[3]))
}

func Convert4326To3857(lon, lat float64) (lonIn3857, latIn3857 float64) {
	p := project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
	return p[0], p[1]
}

func Convert3857To4326(lonIn3857, latIn3857 float64) (lon, lat float64) {
	p := project.Point(orb.Point{lonIn3857, latIn3857}, project.Mercator.ToWGS84)
	return p[0], p[1]
}

// 影像原始分辨率对应的瓦片级别：该级别下一个瓦片像元不大于影像像元
func NativeZoom(b orb.Bound, width, tileSize int) (z int) {
	if width <= 0 || tileSize <= 0 {
		return
	}
	minX, _ := Convert4326To3857(b.Min[0], 0)
	maxX, _ := Convert4326To3857(b.Max[0], 0)
	res := (maxX - minX) / float64(width)
	if res <= 0 {
		return
	}
	z = int(math.Ceil(math.Log2(mercatorWorldWidth / (float64(tileSize) * res))))
	if z < 0 {
		z = 0
	} else if z > MAX_ZOOM {
		z = MAX_ZOOM
	}
	return
}

// 范围中心，无范围时返回默认中心
func CenterOf(b *orb.Bound) MapCenter {
	if b == nil || b.IsEmpty() {
		return MapCenter{Lat: DEFAULT_LAT, Lon: DEFAULT_LON, Zoom: DEFAULT_ZOOM}
	}
	c := b.Center()
	return MapCenter{Lat: c[1], Lon: c[0], Zoom: CENTER_ZOOM}
}
