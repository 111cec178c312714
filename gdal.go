package floodtiles

import (
	"strconv"
	"strings"
	"sync"

	"github.com/wgdzlh/floodtiles/log"

	"github.com/airbusgeo/godal"
	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

var registerOnce sync.Once

// 栅格优化、瓦片渲染与流域矢量处理的工具箱
type Toolbox struct {
	opts   Options
	refMap map[int]gdal.SpatialReference
	rLock  sync.Mutex
	logTag string
}

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

// 工具箱参数，零值字段使用默认值
type Options struct {
	RGBBands          [3]int
	RGBRange          *[2]float64 // 输入影像拉伸范围，nil时按各波段最值自动拉伸
	UncertaintyRange  *[2]float64 // 不确定度的声明值域，nil时使用启发式归一化
	Thresholds        *[2]float64 // 不确定度阈值[low,high]，nil时为0.2、0.8
	Alphas            *[2]uint8   // 两档透明度[mid,high]，nil时为80、180
	Overviews         []int
	Force             bool // 忽略缓存重新生成
	TileSize          int
	Overzoom          int
	IDField           string
	SimplifyTolerance float64                 // 流域轮廓简化容差（度），0为不简化
	OnStep            func(key DerivativeKey) // 每个衍生数据处理完成后回调
}

func (o Options) withDefaults() Options {
	if o.RGBBands == [3]int{} {
		o.RGBBands = DefaultRGBBands
	}
	if o.Thresholds == nil {
		o.Thresholds = &[2]float64{THRESHOLD_LOW, THRESHOLD_HIGH}
	}
	if o.Alphas == nil {
		o.Alphas = &[2]uint8{ALPHA_MID, ALPHA_HIGH}
	}
	if len(o.Overviews) == 0 {
		o.Overviews = OverviewLevels
	}
	if o.TileSize <= 0 {
		o.TileSize = TILE_SIZE
	}
	if o.Overzoom < 0 {
		o.Overzoom = 0
	} else if o.Overzoom == 0 {
		o.Overzoom = OVERZOOM_LEVELS
	}
	if o.IDField == "" {
		o.IDField = HYBAS_ID_FIELD
	}
	return o
}

// 初始化工具箱，opts可选
func NewToolbox(opts ...Options) *Toolbox {
	registerOnce.Do(godal.RegisterAll)
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return &Toolbox{
		opts:   o.withDefaults(),
		refMap: map[int]gdal.SpatialReference{},
		logTag: "Toolbox:",
	}
}

func (g *Toolbox) Options() Options {
	return g.opts
}

// 获取srid对应的坐标系（可复用，故无需回收）
func (g *Toolbox) getSridRef(srid int) (ref gdal.SpatialReference, err error) {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[srid]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromEPSG(srid); err != nil {
		log.Error(g.logTag+"set ref srid failed", zap.Int("srid", srid), zap.Error(err))
		ref.Destroy()
		return
	}
	// 固定为(经度,纬度)的传统GIS轴序，否则4326的转换结果可能为(纬度,经度)
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[srid] = ref
	return
}

// 由WKT创建坐标系，需调用方回收
func (g *Toolbox) wktRef(wkt string) (ref gdal.SpatialReference, err error) {
	if wkt == "" {
		err = ErrUndefinedCRS
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromWKT(wkt); err != nil {
		log.Error(g.logTag+"parse crs wkt failed", zap.Error(err))
		ref.Destroy()
		err = ErrUndefinedCRS
		return
	}
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	return
}

func (g *Toolbox) getSrid(sp gdal.SpatialReference) (srid int, err error) {
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok {
		wkt, _ := sp.ToWKT()
		if strings.Contains(wkt, "WGS_1984") || strings.Contains(wkt, "WGS 84") {
			rawId = "4326"
		} else {
			err = ErrVoidSrid
			return
		}
	}
	srid, err = strconv.Atoi(rawId)
	return
}

// 两个WKT描述的坐标系是否一致
func (g *Toolbox) sameCRS(a, b string) (same bool, err error) {
	if a == b {
		same = a != ""
		if !same {
			err = ErrUndefinedCRS
		}
		return
	}
	ra, err := g.wktRef(a)
	if err != nil {
		return
	}
	defer ra.Destroy()
	rb, err := g.wktRef(b)
	if err != nil {
		return
	}
	defer rb.Destroy()
	same = ra.IsSame(rb)
	return
}
