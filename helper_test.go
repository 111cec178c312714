package floodtiles

import (
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
)

// 经度10~10.1，纬度19.9~20，100x100像元
var testGeoTransform = [6]float64{10, 0.001, 0, 20, 0, -0.001}

func testGrid(t *testing.T, g *Toolbox, w, h int, gt [6]float64) Grid {
	t.Helper()
	return testGridIn(t, g, UNIVERSAL_SRID, w, h, gt)
}

func testGridIn(t *testing.T, g *Toolbox, srid, w, h int, gt [6]float64) Grid {
	t.Helper()
	ref, err := g.getSridRef(srid)
	if err != nil {
		t.Fatal(err)
	}
	wkt, err := ref.ToWKT()
	if err != nil {
		t.Fatal(err)
	}
	return Grid{Width: w, Height: h, GeoTransform: gt, WKT: wkt}
}

func writeTestTif(t *testing.T, path string, gr Grid, dt godal.DataType, bands ...interface{}) {
	t.Helper()
	ds, err := createTif(path, gr, len(bands), dt)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range bands {
		if err = writeBand(ds, i+1, b, gr.Width, gr.Height); err != nil {
			ds.Close()
			t.Fatal(err)
		}
	}
	if err = ds.Close(); err != nil {
		t.Fatal(err)
	}
}

// 写入只有仿射参数、没有坐标系的GTiff
func writeTestTifNoCRS(t *testing.T, path string, w, h int, bands ...[]uint8) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.Byte, w, h)
	if err != nil {
		t.Fatal(err)
	}
	if err = ds.SetGeoTransform(testGeoTransform); err != nil {
		ds.Close()
		t.Fatal(err)
	}
	for i, b := range bands {
		if err = writeBand(ds, i+1, b, w, h); err != nil {
			ds.Close()
			t.Fatal(err)
		}
	}
	if err = ds.Close(); err != nil {
		t.Fatal(err)
	}
}

func fill[T any](v T, n int) []T {
	buf := make([]T, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

type testScene struct {
	g      *Toolbox
	input  string
	output string
	cache  string
}

// 4波段Byte输入影像及2波段（分类、不确定度）输出影像，网格一致
func newTestScene(t *testing.T, class uint8, unc float32, opts ...Options) *testScene {
	t.Helper()
	dir := t.TempDir()
	s := &testScene{
		g:      NewToolbox(opts...),
		input:  filepath.Join(dir, "input.tif"),
		output: filepath.Join(dir, "output.tif"),
		cache:  filepath.Join(dir, "cache"),
	}
	const n = 100 * 100
	gr := testGrid(t, s.g, 100, 100, testGeoTransform)
	writeTestTif(t, s.input, gr, godal.Byte, fill[uint8](10, n), fill[uint8](20, n), fill[uint8](30, n), fill[uint8](40, n))
	writeTestTif(t, s.output, gr, godal.Float32, fill(float32(class), n), fill(unc, n))
	return s
}
