package floodtiles

import (
	"path/filepath"

	"github.com/paulmach/orb"
)

// 衍生数据的逻辑名
type DerivativeKey string

const (
	InputRGB            DerivativeKey = "input_rgb"
	ClassRGB            DerivativeKey = "class_rgb"
	ClassRaw            DerivativeKey = "class_raw"
	UncertaintyFloat    DerivativeKey = "uncertainty_float"
	UncertaintyMaskRGBA DerivativeKey = "uncertainty_mask_rgba"
)

// 生成顺序
var AllDerivatives = []DerivativeKey{InputRGB, ClassRaw, ClassRGB, UncertaintyFloat, UncertaintyMaskRGBA}

// 瓦片路由中的key与衍生数据的对应
var RouteKeys = map[string]DerivativeKey{
	"input": InputRGB,
	"class": ClassRGB,
	"raw":   ClassRaw,
	"unc":   UncertaintyFloat,
	"mask":  UncertaintyMaskRGBA,
}

func (k DerivativeKey) FileName() string {
	switch k {
	case InputRGB:
		return OPT_INPUT_FILE
	case ClassRGB:
		return OPT_CLASS_RGB_FILE
	case ClassRaw:
		return OPT_CLASS_RAW_FILE
	case UncertaintyFloat:
		return OPT_UNCERTAINTY_FILE
	case UncertaintyMaskRGBA:
		return OPT_UNC_MASK_FILE
	}
	return ""
}

func (k DerivativeKey) Kind() Kind {
	switch k {
	case InputRGB, ClassRGB:
		return KindRGB
	case UncertaintyMaskRGBA:
		return KindRGBA
	case UncertaintyFloat:
		return KindContinuous
	case ClassRaw:
		return KindDiscrete
	}
	return KindUnknown
}

// 衍生数据的渲染方式
type Kind int

const (
	KindUnknown Kind = iota
	KindRGB
	KindRGBA
	KindContinuous
	KindDiscrete
)

func (k Kind) String() string {
	switch k {
	case KindRGB:
		return "rgb"
	case KindRGBA:
		return "rgba"
	case KindContinuous:
		return "continuous"
	case KindDiscrete:
		return "discrete"
	}
	return "unknown"
}

// 优化结果：各衍生数据的路径，及本次写入/命中缓存的列表
type DerivativeSet struct {
	Dir     string
	Paths   map[DerivativeKey]string
	Written []DerivativeKey
	Cached  []DerivativeKey
}

func NewDerivativeSet(cacheDir string) *DerivativeSet {
	s := &DerivativeSet{
		Dir:   cacheDir,
		Paths: make(map[DerivativeKey]string, len(AllDerivatives)),
	}
	for _, k := range AllDerivatives {
		s.Paths[k] = filepath.Join(cacheDir, k.FileName())
	}
	return s
}

// 瓦片请求，VMin/VMax为nil时使用图层默认值域
type TileRequest struct {
	Key      string
	Z, X, Y  uint32
	Colormap string
	VMin     *float64
	VMax     *float64
}

// 已生成的图层信息，服务启动时计算一次
type Layer struct {
	Route     string        `json:"key"`
	Name      DerivativeKey `json:"name"`
	Kind      string        `json:"kind"`
	Bound     [4]float64    `json:"bounds"` // minLon,minLat,maxLon,maxLat
	MinZoom   int           `json:"minzoom"`
	MaxZoom   int           `json:"maxzoom"`
	Available bool          `json:"available"`

	path  string
	kind  Kind
	bound orb.Bound
	bands int
}

// 流域矢量面（EPSG:4326）
type Footprint struct {
	ID         int64
	Geometry   orb.Geometry
	Properties map[string]any
}

type MapCenter struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}
