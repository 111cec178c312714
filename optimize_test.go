package floodtiles

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
)

func readTestBand[T any](t *testing.T, path string, idx int) (buf []T, r *Raster) {
	t.Helper()
	r, err := OpenRaster(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	buf = make([]T, r.Grid.Width*r.Grid.Height)
	if err = readBand(r.Dataset, idx, buf, r.Grid.Width, r.Grid.Height); err != nil {
		t.Fatal(err)
	}
	return
}

func TestOptimize(t *testing.T) {
	var steps []DerivativeKey
	s := newTestScene(t, 2, 0.5, Options{OnStep: func(k DerivativeKey) { steps = append(steps, k) }})
	set, err := s.g.Optimize(s.input, s.output, s.cache, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Written) != len(AllDerivatives) || len(set.Cached) != 0 || len(steps) != len(AllDerivatives) {
		t.Fatalf("written %v cached %v steps %v", set.Written, set.Cached, steps)
	}
	for _, k := range AllDerivatives {
		r, err := OpenRaster(set.Paths[k])
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if r.Grid.Width != 25 || r.Grid.Height != 25 {
			t.Fatalf("%s: %dx%d, want 25x25", k, r.Grid.Width, r.Grid.Height)
		}
		r.Close()
	}

	red, in := readTestBand[uint8](t, set.Paths[InputRGB], 1)
	blue, _ := readTestBand[uint8](t, set.Paths[InputRGB], 3)
	if in.Bands != 3 || red[0] != 40 || blue[0] != 20 {
		t.Fatalf("input_rgb: bands %d red %d blue %d", in.Bands, red[0], blue[0])
	}

	raw, _ := readTestBand[uint8](t, set.Paths[ClassRaw], 1)
	if raw[300] != 2 {
		t.Fatalf("class_raw %d, want 2", raw[300])
	}
	var rgb [3]uint8
	for i := range rgb {
		b, _ := readTestBand[uint8](t, set.Paths[ClassRGB], i+1)
		rgb[i] = b[300]
	}
	if rgb != [3]uint8{100, 149, 237} {
		t.Fatalf("class_rgb %v", rgb)
	}

	unc, _ := readTestBand[float32](t, set.Paths[UncertaintyFloat], 1)
	if unc[300] != 0.5 {
		t.Fatalf("uncertainty %g, want 0.5", unc[300])
	}
	alpha, mask := readTestBand[uint8](t, set.Paths[UncertaintyMaskRGBA], 4)
	red, _ = readTestBand[uint8](t, set.Paths[UncertaintyMaskRGBA], 1)
	if mask.Bands != 4 || alpha[300] != 80 || red[300] != MaskColor[0] {
		t.Fatalf("mask: bands %d alpha %d red %d", mask.Bands, alpha[300], red[300])
	}

	// 再次运行全部命中缓存
	set, err = s.g.Optimize(s.input, s.output, s.cache, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Written) != 0 || len(set.Cached) != len(AllDerivatives) {
		t.Fatalf("second run: written %v cached %v", set.Written, set.Cached)
	}
}

func TestOptimizeQuantizedUncertainty(t *testing.T) {
	s := newTestScene(t, 4, 255)
	set, err := s.g.Optimize(s.input, s.output, s.cache, 2)
	if err != nil {
		t.Fatal(err)
	}
	unc, r := readTestBand[float32](t, set.Paths[UncertaintyFloat], 1)
	if r.Grid.Width != 50 || unc[0] != 1 {
		t.Fatalf("width %d uncertainty %g", r.Grid.Width, unc[0])
	}
	alpha, _ := readTestBand[uint8](t, set.Paths[UncertaintyMaskRGBA], 4)
	if alpha[0] != 180 {
		t.Fatalf("alpha %d, want 180", alpha[0])
	}
}

func TestOptimizeDeclaredRange(t *testing.T) {
	s := newTestScene(t, 1, 10, Options{UncertaintyRange: &[2]float64{0, 100}})
	set, err := s.g.Optimize(s.input, s.output, s.cache, 4)
	if err != nil {
		t.Fatal(err)
	}
	alpha, _ := readTestBand[uint8](t, set.Paths[UncertaintyMaskRGBA], 4)
	if alpha[0] != 0 {
		t.Fatalf("alpha %d, want 0 for uncertainty 0.1", alpha[0])
	}
}

func TestOptimizeRegenerate(t *testing.T) {
	s := newTestScene(t, 2, 0.5)
	set, err := s.g.Optimize(s.input, s.output, s.cache, 4)
	if err != nil {
		t.Fatal(err)
	}
	// 删除单个衍生数据后只补齐该项，输入影像不再参与
	if err = os.Remove(set.Paths[ClassRGB]); err != nil {
		t.Fatal(err)
	}
	if err = os.Remove(s.input); err != nil {
		t.Fatal(err)
	}
	set, err = s.g.Optimize(s.input, s.output, s.cache, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Written) != 1 || set.Written[0] != ClassRGB || len(set.Cached) != 4 {
		t.Fatalf("written %v cached %v", set.Written, set.Cached)
	}

	forced := NewToolbox(Options{Force: true})
	if _, err = forced.Optimize(s.input, s.output, s.cache, 4); !errors.Is(err, ErrIO) {
		t.Fatalf("forced run without input: got %v", err)
	}
	entries, _ := os.ReadDir(s.cache)
	if len(entries) != len(AllDerivatives) {
		t.Fatalf("cache has %d entries, want %d", len(entries), len(AllDerivatives))
	}
}

func TestOptimizeMissingUncertaintyBand(t *testing.T) {
	s := newTestScene(t, 2, 0.5)
	gr := testGrid(t, s.g, 100, 100, testGeoTransform)
	oneBand := filepath.Join(t.TempDir(), "class_only.tif")
	writeTestTif(t, oneBand, gr, godal.Byte, fill[uint8](2, 100*100))
	set, err := s.g.Optimize(s.input, oneBand, s.cache, 4)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("got %v", err)
	}
	// 分类与输入影像不受影响
	if len(set.Written) != 3 {
		t.Fatalf("written %v", set.Written)
	}
}

func TestOptimizeMissingInput(t *testing.T) {
	s := newTestScene(t, 2, 0.5)
	set, err := s.g.Optimize(filepath.Join(t.TempDir(), "missing.tif"), s.output, s.cache, 4)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("got %v", err)
	}
	// 只依赖输出影像的衍生数据照常生成
	want := []DerivativeKey{ClassRaw, ClassRGB, UncertaintyFloat, UncertaintyMaskRGBA}
	if len(set.Written) != len(want) {
		t.Fatalf("written %v, want %v", set.Written, want)
	}
	for i, k := range want {
		if set.Written[i] != k {
			t.Fatalf("written %v, want %v", set.Written, want)
		}
	}
	if _, err = os.Stat(set.Paths[InputRGB]); !os.IsNotExist(err) {
		t.Fatalf("input_rgb should not exist: %v", err)
	}
}

func TestOptimizeUndefinedCRS(t *testing.T) {
	s := newTestScene(t, 2, 0.5)
	n := 100 * 100
	noCRS := filepath.Join(t.TempDir(), "nocrs.tif")
	writeTestTifNoCRS(t, noCRS, 100, 100, fill[uint8](1, n), fill[uint8](2, n), fill[uint8](3, n), fill[uint8](4, n))

	set, err := s.g.Optimize(noCRS, s.output, s.cache, 4)
	if !errors.Is(err, ErrConfiguration) || len(set.Written) != 4 {
		t.Fatalf("input without crs: written %v err %v", set.Written, err)
	}

	set, err = s.g.Optimize(s.input, noCRS, filepath.Join(t.TempDir(), "cache"), 4)
	if !errors.Is(err, ErrConfiguration) || len(set.Written) != 0 {
		t.Fatalf("output without crs: written %v err %v", set.Written, err)
	}
}

func TestOptimizeDiscreteCodes(t *testing.T) {
	s := newTestScene(t, 2, 0.5)
	// 对角条纹分类波段，含全部代码0~4
	const w = 100
	classes := make([]float32, w*w)
	for i := range classes {
		classes[i] = float32((i%w + i/w) % 5)
	}
	gr := testGrid(t, s.g, w, w, testGeoTransform)
	writeTestTif(t, s.output, gr, godal.Float32, classes, fill[float32](0.5, w*w))

	set, err := s.g.Optimize(s.input, s.output, s.cache, 3)
	if err != nil {
		t.Fatal(err)
	}
	raw, r := readTestBand[uint8](t, set.Paths[ClassRaw], 1)
	seen := map[uint8]bool{}
	for _, c := range raw {
		if c > 4 {
			t.Fatalf("class_raw holds interpolated code %d", c)
		}
		seen[c] = true
	}
	if len(seen) != 5 {
		t.Fatalf("codes %v, want all of 0~4", seen)
	}

	ovs := r.Dataset.Bands()[0].Overviews()
	if len(ovs) == 0 {
		t.Fatal("class_raw has no overviews")
	}
	for _, ov := range ovs {
		st := ov.Structure()
		buf := make([]uint8, st.SizeX*st.SizeY)
		if err = ov.IO(godal.IORead, 0, 0, buf, st.SizeX, st.SizeY); err != nil {
			t.Fatal(err)
		}
		for _, c := range buf {
			if c > 4 {
				t.Fatalf("overview %dx%d holds code %d", st.SizeX, st.SizeY, c)
			}
		}
	}

	rgb, _ := readTestBand[uint8](t, set.Paths[ClassRGB], 3)
	for i, c := range raw {
		if rgb[i] != ClassPalette[c][2] {
			t.Fatalf("pixel %d: class %d blue %d", i, c, rgb[i])
		}
	}
}
