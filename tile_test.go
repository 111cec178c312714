package floodtiles

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func newTestTiler(t *testing.T) *Tiler {
	t.Helper()
	s := newTestScene(t, 2, 0.5)
	if _, err := s.g.Optimize(s.input, s.output, s.cache, 4); err != nil {
		t.Fatal(err)
	}
	return s.g.NewTiler(s.cache)
}

// 包含测试影像的z9瓦片
func testTile(key string) TileRequest {
	tile := maptile.At(orb.Point{10.05, 19.95}, 9)
	return TileRequest{Key: key, Z: uint32(tile.Z), X: tile.X, Y: tile.Y}
}

func decodeTile(t *testing.T, buf []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != TILE_SIZE || b.Dy() != TILE_SIZE {
		t.Fatalf("tile size %v", b)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("unexpected image type %T", img)
	}
	return nrgba
}

// 查找第一个不透明像元
func opaquePixel(img *image.NRGBA) (c [4]uint8, found bool) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		if img.Pix[i+3] == 255 {
			copy(c[:], img.Pix[i:i+4])
			return c, true
		}
	}
	return
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestTilerLayers(t *testing.T) {
	tiler := newTestTiler(t)
	ls := tiler.Layers()
	if len(ls) != len(RouteKeys) {
		t.Fatalf("got %d layers", len(ls))
	}
	for _, l := range ls {
		if !l.Available {
			t.Fatalf("layer %s unavailable", l.Route)
		}
		if l.MaxZoom != 9+OVERZOOM_LEVELS {
			t.Fatalf("layer %s maxzoom %d", l.Route, l.MaxZoom)
		}
		if l.Bound[0] < 9.99 || l.Bound[2] > 10.11 {
			t.Fatalf("layer %s bounds %v", l.Route, l.Bound)
		}
	}
	if ls[0].Route != "class" {
		t.Fatalf("layers not sorted: %s first", ls[0].Route)
	}
}

func TestTileClass(t *testing.T) {
	tiler := newTestTiler(t)
	buf, err := tiler.Tile(testTile("class"))
	if err != nil {
		t.Fatal(err)
	}
	img := decodeTile(t, buf)
	if img.Pix[3] != 0 {
		t.Fatal("corner outside the image should be transparent")
	}
	c, found := opaquePixel(img)
	if !found || c != [4]uint8{100, 149, 237, 255} {
		t.Fatalf("class pixel %v found=%t", c, found)
	}
}

func TestTileInput(t *testing.T) {
	tiler := newTestTiler(t)
	buf, err := tiler.Tile(testTile("input"))
	if err != nil {
		t.Fatal(err)
	}
	c, found := opaquePixel(decodeTile(t, buf))
	if !found || c != [4]uint8{40, 30, 20, 255} {
		t.Fatalf("input pixel %v found=%t", c, found)
	}
}

func TestTileMask(t *testing.T) {
	tiler := newTestTiler(t)
	buf, err := tiler.Tile(testTile("mask"))
	if err != nil {
		t.Fatal(err)
	}
	img := decodeTile(t, buf)
	var found bool
	for i := 0; i < len(img.Pix); i += 4 {
		// 重采样可能带来取整误差
		if a := int(img.Pix[i+3]); a >= ALPHA_MID-2 && a <= ALPHA_MID+2 {
			found = img.Pix[i] == MaskColor[0] && img.Pix[i+1] == MaskColor[1] && img.Pix[i+2] == MaskColor[2]
			break
		}
	}
	if !found {
		t.Fatal("no mask pixel with mid alpha")
	}
}

func TestTileContinuous(t *testing.T) {
	tiler := newTestTiler(t)
	req := testTile("unc")
	buf, err := tiler.Tile(req)
	if err != nil {
		t.Fatal(err)
	}
	c, found := opaquePixel(decodeTile(t, buf))
	if !found || c[0] == 0 || absDiff(c[0], c[1]) > 1 || absDiff(c[1], c[2]) > 1 {
		t.Fatalf("grayscale pixel %v found=%t", c, found)
	}

	req.Colormap = "reds"
	if buf, err = tiler.Tile(req); err != nil {
		t.Fatal(err)
	}
	reds, _ := LookupColormap("reds")
	// 0.5位于查找表127与128之间
	c, _ = opaquePixel(decodeTile(t, buf))
	if got := [3]uint8{c[0], c[1], c[2]}; got != reds[127] && got != reds[128] {
		t.Fatalf("reds pixel %v, want %v or %v", got, reds[127], reds[128])
	}

	// 值域外截断到色带末端
	lo, hi := 0.0, 0.25
	req.VMin, req.VMax = &lo, &hi
	if buf, err = tiler.Tile(req); err != nil {
		t.Fatal(err)
	}
	if c, _ = opaquePixel(decodeTile(t, buf)); [3]uint8{c[0], c[1], c[2]} != reds[255] {
		t.Fatalf("clamped pixel %v, want %v", c, reds[255])
	}
}

func TestTileErrors(t *testing.T) {
	tiler := newTestTiler(t)
	lo, hi := 1.0, 0.5
	bad := testTile("unc")
	bad.VMin, bad.VMax = &lo, &hi
	unknownCm := testTile("unc")
	unknownCm.Colormap = "nope"
	tooDeep := maptile.At(orb.Point{10.05, 19.95}, 20)

	for name, c := range map[string]struct {
		req  TileRequest
		kind error
	}{
		"unknown key":      {TileRequest{Key: "foo", Z: 9}, ErrNotFound},
		"outside extent":   {TileRequest{Key: "class", Z: 9, X: 0, Y: 0}, ErrNotFound},
		"beyond max zoom":  {TileRequest{Key: "class", Z: 20, X: tooDeep.X, Y: tooDeep.Y}, ErrNotFound},
		"invalid tile":     {TileRequest{Key: "class", Z: 1, X: 5, Y: 0}, ErrNotFound},
		"inverted range":   {bad, ErrInvalidParam},
		"unknown colormap": {unknownCm, ErrInvalidParam},
	} {
		if _, err := tiler.Tile(c.req); !errors.Is(err, c.kind) {
			t.Errorf("%s: got %v, want %v", name, err, c.kind)
		}
	}
}

func TestTileMissingLayer(t *testing.T) {
	tiler := NewToolbox().NewTiler(t.TempDir())
	for _, l := range tiler.Layers() {
		if l.Available {
			t.Fatalf("layer %s should be unavailable", l.Route)
		}
	}
	if _, err := tiler.Tile(testTile("class")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestTileConcurrent(t *testing.T) {
	tiler := newTestTiler(t)
	const workers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testTile([]string{"class", "unc"}[i%2])
			for j := 0; j < 2; j++ {
				buf, err := tiler.Tile(req)
				if err != nil {
					errCh <- err
					return
				}
				img, err := png.Decode(bytes.NewReader(buf))
				if err != nil {
					errCh <- err
					return
				}
				if b := img.Bounds(); b.Dx() != TILE_SIZE || b.Dy() != TILE_SIZE {
					errCh <- fmt.Errorf("tile size %v", b)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}
