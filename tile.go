package floodtiles

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"sort"
	"strconv"

	"github.com/wgdzlh/floodtiles/log"
	"github.com/wgdzlh/floodtiles/utils"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"go.uber.org/zap"
)

// 瓦片服务：图层信息在创建时计算一次，之后只读；每次请求独立打开衍生数据并在返回前关闭
type Tiler struct {
	g      *Toolbox
	layers map[string]*Layer
}

// 扫描缓存目录中的衍生数据，缺失的图层标记为不可用
func (g *Toolbox) NewTiler(cacheDir string) *Tiler {
	t := &Tiler{g: g, layers: make(map[string]*Layer, len(RouteKeys))}
	set := NewDerivativeSet(cacheDir)
	for route, key := range RouteKeys {
		l := g.describeLayer(route, key, set.Paths[key])
		t.layers[route] = &l
	}
	return t
}

func (g *Toolbox) describeLayer(route string, key DerivativeKey, path string) (l Layer) {
	l = Layer{Route: route, Name: key, Kind: key.Kind().String(), path: path, kind: key.Kind()}
	if !utils.FileExists(path) {
		return
	}
	r, err := OpenRaster(path)
	if err != nil {
		log.Warn(g.logTag+"layer unreadable", zap.String("key", route), zap.Error(err))
		return
	}
	defer r.Close()
	if l.bound, err = g.rasterBound(r); err != nil {
		log.Warn(g.logTag+"layer bounds failed", zap.String("key", route), zap.Error(err))
		return
	}
	l.bands = r.Bands
	l.Bound = [4]float64{l.bound.Min[0], l.bound.Min[1], l.bound.Max[0], l.bound.Max[1]}
	l.MaxZoom = NativeZoom(l.bound, r.Grid.Width, g.opts.TileSize) + g.opts.Overzoom
	if l.MaxZoom > MAX_ZOOM {
		l.MaxZoom = MAX_ZOOM
	}
	l.Available = true
	return
}

// 按路由key排序的图层列表
func (t *Tiler) Layers() (ls []Layer) {
	for _, l := range t.layers {
		ls = append(ls, *l)
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Route < ls[j].Route })
	return
}

// 渲染单张PNG瓦片
func (t *Tiler) Tile(req TileRequest) (buf []byte, err error) {
	layer, ok := t.layers[req.Key]
	if !ok || !layer.Available {
		err = ErrImageNotFound
		return
	}
	cm, vmin, vmax, err := layer.style(req)
	if err != nil {
		return
	}
	tile := maptile.New(req.X, req.Y, maptile.Zoom(req.Z))
	if req.Z > uint32(layer.MaxZoom) || !tile.Valid() {
		err = ErrTileOutOfRange
		return
	}
	tb := tile.Bound()
	if !overlaps(tb, layer.bound) {
		err = ErrTileOutOfRange
		return
	}
	ds, err := godal.Open(layer.path, godal.RasterOnly())
	if err != nil {
		log.Error(t.g.logTag+"open layer failed", zap.String("key", req.Key), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrInvalidTif, err)
		return
	}
	defer ds.Close()

	size := t.g.opts.TileSize
	mb := project.Bound(tb, project.WGS84.ToMercator)
	alg := godal.Bilinear
	if layer.Name == ClassRGB || layer.Name == ClassRaw {
		alg = godal.Nearest
	}
	switches := []string{
		"-of", "MEM",
		"-t_srs", fmt.Sprintf("EPSG:%d", WEB_MERCATOR_SRID),
		"-te", fmtFloat(mb.Min[0]), fmtFloat(mb.Min[1]), fmtFloat(mb.Max[0]), fmtFloat(mb.Max[1]),
		"-ts", strconv.Itoa(size), strconv.Itoa(size),
		"-r", resamplingName(alg),
	}
	if layer.kind != KindRGBA {
		switches = append(switches, "-dstalpha")
	}
	warped, err := godal.Warp("", []*godal.Dataset{ds}, switches)
	if err != nil {
		log.Error(t.g.logTag+"warp tile failed", zap.String("key", req.Key), zap.Uint32s("zxy", []uint32{req.Z, req.X, req.Y}), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrRender, err)
		return
	}
	defer warped.Close()
	img, err := layer.render(warped, size, cm, vmin, vmax)
	if err != nil {
		return
	}
	var w bytes.Buffer
	if err = png.Encode(&w, img); err != nil {
		err = fmt.Errorf("%w: %v", ErrPngEncode, err)
		return
	}
	buf = w.Bytes()
	return
}

// 按图层类型确定色带与值域，RGB类图层忽略色带参数
func (l *Layer) style(req TileRequest) (cm *Colormap, vmin, vmax float64, err error) {
	switch l.kind {
	case KindContinuous:
		vmin, vmax = 0, 1
	case KindDiscrete:
		vmin, vmax = 0, 4
	default:
		return
	}
	if req.VMin != nil {
		vmin = *req.VMin
	}
	if req.VMax != nil {
		vmax = *req.VMax
	}
	if !(vmin < vmax) {
		err = ErrWrongValueRange
		return
	}
	if req.Colormap != "" {
		cm, err = LookupColormap(req.Colormap)
	} else if l.kind == KindContinuous {
		cm = colormaps["gray"]
	}
	return
}

func (l *Layer) render(ds *godal.Dataset, size int, cm *Colormap, vmin, vmax float64) (img *image.NRGBA, err error) {
	n := len(ds.Bands())
	img = image.NewNRGBA(image.Rect(0, 0, size, size))
	px := size * size
	alpha := constBand(255, px)
	readAlpha := func(idx int) error {
		if n >= idx {
			return readBand(ds, idx, alpha, size, size)
		}
		return nil
	}
	switch l.kind {
	case KindRGB, KindRGBA:
		var rgb [3][]uint8
		for i := range rgb {
			rgb[i] = make([]uint8, px)
			if err = readBand(ds, i+1, rgb[i], size, size); err != nil {
				break
			}
		}
		if err == nil {
			err = readAlpha(4)
		}
		if err != nil {
			break
		}
		for i := 0; i < px; i++ {
			copy(img.Pix[i*4:], []uint8{rgb[0][i], rgb[1][i], rgb[2][i], alpha[i]})
		}
	case KindContinuous, KindDiscrete:
		vals := make([]float64, px)
		if err = readBand(ds, 1, vals, size, size); err == nil {
			err = readAlpha(2)
		}
		if err != nil {
			break
		}
		for i, v := range vals {
			var c [3]uint8
			a := alpha[i]
			switch {
			case math.IsNaN(v):
				a = 0
			case cm != nil:
				c = cm.At(v, vmin, vmax)
			default:
				c = ClassPalette[uint8(math.Max(0, math.Min(255, v)))]
			}
			copy(img.Pix[i*4:], []uint8{c[0], c[1], c[2], a})
		}
	default:
		err = ErrRender
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRender, err)
	}
	return
}

// 两个经纬度范围是否有面积重叠（仅边界相接不算）
func overlaps(a, b orb.Bound) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] && a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1]
}
