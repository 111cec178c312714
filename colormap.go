package floodtiles

import (
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const REVERSED_SUFFIX = "_r"

// 256级颜色查找表
type Colormap [256][3]uint8

// 具名色带的关键色，按Lab空间插值为256级
var colormapStops = map[string][]string{
	"viridis":  {"#440154", "#482878", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"},
	"magma":    {"#000004", "#180f3d", "#440f76", "#721f81", "#9e2f7f", "#cd4071", "#f1605d", "#fd9668", "#feca8d", "#fcfdbf"},
	"greens":   {"#f7fcf5", "#e5f5e0", "#c7e9c0", "#a1d99b", "#74c476", "#41ab5d", "#238b45", "#006d2c", "#00441b"},
	"blues":    {"#f7fbff", "#deebf7", "#c6dbef", "#9ecae1", "#6baed6", "#4292c6", "#2171b5", "#08519c", "#08306b"},
	"reds":     {"#fff5f0", "#fee0d2", "#fcbba1", "#fc9272", "#fb6a4a", "#ef3b2c", "#cb181d", "#a50f15", "#67000d"},
	"greys":    {"#ffffff", "#f0f0f0", "#d9d9d9", "#bdbdbd", "#969696", "#737373", "#525252", "#252525", "#000000"},
	"gray":     {"#000000", "#ffffff"},
	"rdylgn":   {"#a50026", "#d73027", "#f46d43", "#fdae61", "#fee08b", "#ffffbf", "#d9ef8b", "#a6d96a", "#66bd63", "#1a9850", "#006837"},
	"spectral": {"#9e0142", "#d53e4f", "#f46d43", "#fdae61", "#fee08b", "#ffffbf", "#e6f598", "#abdda4", "#66c2a5", "#3288bd", "#5e4fa2"},
}

// 启动时构建，之后只读
var colormaps = map[string]*Colormap{}

func init() {
	for name, stops := range colormapStops {
		cm := buildColormap(stops)
		colormaps[name] = cm
		colormaps[name+REVERSED_SUFFIX] = cm.reversed()
	}
}

func buildColormap(stops []string) *Colormap {
	cs := make([]colorful.Color, len(stops))
	for i, s := range stops {
		c, err := colorful.Hex(s)
		if err != nil {
			panic(err)
		}
		cs[i] = c
	}
	var cm Colormap
	seg := float64(len(cs) - 1)
	for i := range cm {
		pos := float64(i) / 255 * seg
		j := int(pos)
		if j >= len(cs)-1 {
			j = len(cs) - 2
		}
		c := cs[j].BlendLab(cs[j+1], pos-float64(j)).Clamped()
		cm[i][0], cm[i][1], cm[i][2] = c.RGB255()
	}
	return &cm
}

func (cm *Colormap) reversed() *Colormap {
	var r Colormap
	for i := range cm {
		r[255-i] = cm[i]
	}
	return &r
}

// 按[vmin,vmax]取色，超出值域的截断到两端
func (cm *Colormap) At(v, vmin, vmax float64) [3]uint8 {
	return cm[lutIndex(v, vmin, vmax)]
}

func lutIndex(v, vmin, vmax float64) int {
	t := (v - vmin) / (vmax - vmin)
	if math.IsNaN(t) || t <= 0 {
		return 0
	}
	if t >= 1 {
		return 255
	}
	return int(math.Round(t * 255))
}

// 按名称获取色带，大小写不敏感，"_r"后缀为反转
func LookupColormap(name string) (cm *Colormap, err error) {
	cm, ok := colormaps[strings.ToLower(name)]
	if !ok {
		err = ErrUnknownColormap
	}
	return
}

func ColormapNames() (names []string) {
	for name := range colormapStops {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}
