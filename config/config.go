// Package config 读取dataset/config.yaml，并允许环境变量（含.env）覆盖部分字段
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wgdzlh/floodtiles"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_CONFIG_PATH = "dataset/config.yaml"
	DEFAULT_PORT        = 7777

	ENV_CONFIG    = "FLOODTILES_CONFIG"
	ENV_PORT      = "PORT"
	ENV_CACHE_DIR = "FLOODTILES_CACHE_DIR"
	ENV_LOG_LEVEL = "FLOODTILES_LOG_LEVEL"
)

type Model struct {
	InputPath        string    `yaml:"input_path"`
	OutputPath       string    `yaml:"output_path"`
	RGBBands         []int     `yaml:"rgb_bands,omitempty"`
	RGBRange         []float64 `yaml:"rgb_range,omitempty"`
	UncertaintyRange []float64 `yaml:"uncertainty_range,omitempty"`
}

type Watershed struct {
	Path      string  `yaml:"path"`
	DefaultID *int64  `yaml:"default_id,omitempty"`
	IDField   string  `yaml:"id_field,omitempty"`
	Simplify  float64 `yaml:"simplify,omitempty"` // 轮廓简化容差（度）
}

type Cache struct {
	Dir string `yaml:"dir"`
}

type Optimize struct {
	Factor        int     `yaml:"factor"`
	ThresholdLow  float64 `yaml:"threshold_low"`
	ThresholdHigh float64 `yaml:"threshold_high"`
	AlphaMid      uint8   `yaml:"alpha_mid"`
	AlphaHigh     uint8   `yaml:"alpha_high"`
	Overviews     []int   `yaml:"overviews,omitempty"`
}

type Server struct {
	Port     int `yaml:"port"`
	TileSize int `yaml:"tile_size"`
	Overzoom int `yaml:"overzoom"` // 0为默认值3，负数表示不允许超出原始级别
}

type Basemap struct {
	URL string `yaml:"url"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Model     Model     `yaml:"model"`
	Watershed Watershed `yaml:"watershed"`
	Cache     Cache     `yaml:"cache"`
	Optimize  Optimize  `yaml:"optimize"`
	Server    Server    `yaml:"server"`
	Basemap   Basemap   `yaml:"basemap"`
	Log       Log       `yaml:"log"`

	// 配置文件路径，保存流域选择时写回
	Path string `yaml:"-"`
}

// 读取配置，path为空时依次使用FLOODTILES_CONFIG及默认路径
func Load(path ...string) (cfg Config, err error) {
	_ = godotenv.Load()

	cfg = Config{
		Cache:    Cache{Dir: floodtiles.CACHE_DIR},
		Optimize: Optimize{
			Factor:        floodtiles.DEFAULT_FACTOR,
			ThresholdLow:  floodtiles.THRESHOLD_LOW,
			ThresholdHigh: floodtiles.THRESHOLD_HIGH,
			AlphaMid:      floodtiles.ALPHA_MID,
			AlphaHigh:     floodtiles.ALPHA_HIGH,
		},
		Server:   Server{Port: DEFAULT_PORT, TileSize: floodtiles.TILE_SIZE},
		Path:     DEFAULT_CONFIG_PATH,
	}
	if len(path) > 0 && path[0] != "" {
		cfg.Path = path[0]
	} else if p := os.Getenv(ENV_CONFIG); p != "" {
		cfg.Path = p
	}
	raw, err := os.ReadFile(cfg.Path)
	if err != nil {
		err = fmt.Errorf("read config %s: %w", cfg.Path, err)
		return
	}
	if err = yaml.Unmarshal(raw, &cfg); err != nil {
		err = fmt.Errorf("parse config %s: %w", cfg.Path, err)
		return
	}

	if dir := os.Getenv(ENV_CACHE_DIR); dir != "" {
		cfg.Cache.Dir = dir
	}
	if lvl := os.Getenv(ENV_LOG_LEVEL); lvl != "" {
		cfg.Log.Level = lvl
	}
	if portStr := os.Getenv(ENV_PORT); portStr != "" {
		if port, e := strconv.Atoi(portStr); e == nil && port > 0 {
			cfg.Server.Port = port
		} else {
			err = fmt.Errorf("invalid PORT: %s", portStr)
			return
		}
	}
	err = cfg.validate()
	return
}

func (c Config) validate() error {
	if c.Model.InputPath == "" {
		return errors.New("model.input_path is required")
	}
	if c.Model.OutputPath == "" {
		return errors.New("model.output_path is required")
	}
	if n := len(c.Model.RGBBands); n != 0 && n != 3 {
		return fmt.Errorf("model.rgb_bands needs 3 bands, got %d", n)
	}
	for name, r := range map[string][]float64{"model.rgb_range": c.Model.RGBRange, "model.uncertainty_range": c.Model.UncertaintyRange} {
		if len(r) != 0 && (len(r) != 2 || r[0] >= r[1]) {
			return fmt.Errorf("invalid %s: %v", name, r)
		}
	}
	if c.Optimize.Factor < 1 {
		return fmt.Errorf("invalid optimize.factor: %d", c.Optimize.Factor)
	}
	if lo, hi := c.Optimize.ThresholdLow, c.Optimize.ThresholdHigh; !(0 <= lo && lo < hi && hi <= 1) {
		return fmt.Errorf("invalid optimize thresholds: need 0 <= threshold_low < threshold_high <= 1, got %g, %g", lo, hi)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// 转为工具箱参数
func (c Config) ToolboxOptions() (o floodtiles.Options) {
	if len(c.Model.RGBBands) == 3 {
		copy(o.RGBBands[:], c.Model.RGBBands)
	}
	if len(c.Model.RGBRange) == 2 {
		o.RGBRange = &[2]float64{c.Model.RGBRange[0], c.Model.RGBRange[1]}
	}
	if len(c.Model.UncertaintyRange) == 2 {
		o.UncertaintyRange = &[2]float64{c.Model.UncertaintyRange[0], c.Model.UncertaintyRange[1]}
	}
	o.Thresholds = &[2]float64{c.Optimize.ThresholdLow, c.Optimize.ThresholdHigh}
	o.Alphas = &[2]uint8{c.Optimize.AlphaMid, c.Optimize.AlphaHigh}
	o.Overviews = c.Optimize.Overviews
	o.TileSize = c.Server.TileSize
	o.Overzoom = c.Server.Overzoom
	o.IDField = c.Watershed.IDField
	o.SimplifyTolerance = c.Watershed.Simplify
	return
}

// 将选中的流域id写入配置文件的watershed.default_id，保留其余内容与注释
func SaveWatershedID(path string, id int64) (err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var doc yaml.Node
	if err = yaml.Unmarshal(raw, &doc); err != nil {
		return
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config %s is not a mapping", path)
	}
	ws := mappingValue(doc.Content[0], "watershed", yaml.MappingNode)
	if ws.Kind == yaml.ScalarNode && ws.Tag == "!!null" {
		ws.Kind, ws.Tag, ws.Value = yaml.MappingNode, "!!map", ""
	}
	if ws.Kind != yaml.MappingNode {
		return fmt.Errorf("config %s: watershed is not a mapping", path)
	}
	v := mappingValue(ws, "default_id", yaml.ScalarNode)
	v.Kind, v.Tag, v.Value, v.Style = yaml.ScalarNode, "!!int", strconv.FormatInt(id, 10), 0
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err = os.WriteFile(tmp, out, 0o644); err != nil {
		return
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
	}
	return
}

// 获取映射中key对应的值节点，不存在时追加
func mappingValue(m *yaml.Node, key string, kind yaml.Kind) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	v := &yaml.Node{Kind: kind}
	if kind == yaml.MappingNode {
		v.Tag = "!!map"
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}
