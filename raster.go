package floodtiles

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/wgdzlh/floodtiles/log"
	"github.com/wgdzlh/floodtiles/utils"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 栅格网格：尺寸、仿射变换与坐标系
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	WKT          string
}

func (gr Grid) SameShape(o Grid) bool {
	return gr.Width == o.Width && gr.Height == o.Height
}

// 仿射参数在像元大小的相对容差内一致
func (gr Grid) SameTransform(o Grid) bool {
	tol := GRID_TOLERANCE * math.Max(math.Abs(gr.GeoTransform[1]), math.Abs(gr.GeoTransform[5]))
	for i := range gr.GeoTransform {
		if math.Abs(gr.GeoTransform[i]-o.GeoTransform[i]) > tol {
			return false
		}
	}
	return true
}

// 范围：minX,minY,maxX,maxY
func (gr Grid) Extent() (ext [4]float64) {
	gt := gr.GeoTransform
	ext = [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range [4][2]float64{{0, 0}, {float64(gr.Width), 0}, {0, float64(gr.Height)}, {float64(gr.Width), float64(gr.Height)}} {
		x := gt[0] + c[0]*gt[1] + c[1]*gt[2]
		y := gt[3] + c[0]*gt[4] + c[1]*gt[5]
		ext[0] = math.Min(ext[0], x)
		ext[1] = math.Min(ext[1], y)
		ext[2] = math.Max(ext[2], x)
		ext[3] = math.Max(ext[3], y)
	}
	return
}

// 按整数倍率降采样后的网格，范围不变
func (gr Grid) Downsample(factor int) (ds Grid, err error) {
	if factor < 1 {
		err = ErrWrongFactor
		return
	}
	ds = gr
	ds.Width = gr.Width / factor
	ds.Height = gr.Height / factor
	if ds.Width == 0 || ds.Height == 0 {
		err = ErrEmptyGrid
		return
	}
	sx := float64(gr.Width) / float64(ds.Width)
	sy := float64(gr.Height) / float64(ds.Height)
	ds.GeoTransform[1] *= sx
	ds.GeoTransform[2] *= sy
	ds.GeoTransform[4] *= sx
	ds.GeoTransform[5] *= sy
	return
}

// 打开的栅格，src为VRT等派生数据集所依赖的源数据集
type Raster struct {
	*godal.Dataset
	Path     string
	Grid     Grid
	Bands    int
	DataType godal.DataType // 首波段数据类型
	src      *godal.Dataset
}

func (r *Raster) Close() {
	if r == nil || r.Dataset == nil {
		return
	}
	r.Dataset.Close()
	if r.src != nil {
		r.src.Close()
	}
}

// 只读打开栅格，要求坐标系已定义
func OpenRaster(path string) (r *Raster, err error) {
	if !utils.FileExists(path) {
		err = fmt.Errorf("%w: %s", ErrInvalidTif, path)
		return
	}
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		log.Error("Raster:open tif failed", zap.String("path", path), zap.Error(err))
		err = fmt.Errorf("%w: %s", ErrInvalidTif, path)
		return
	}
	r = &Raster{Dataset: ds, Path: path}
	if r.Grid, err = gridOf(ds); err != nil {
		ds.Close()
		r = nil
		err = fmt.Errorf("%w: %s", err, path)
		return
	}
	r.Bands = ds.Structure().NBands
	if r.Bands > 0 {
		r.DataType = ds.Bands()[0].Structure().DataType
	}
	return
}

func gridOf(ds *godal.Dataset) (gr Grid, err error) {
	st := ds.Structure()
	gr.Width, gr.Height = st.SizeX, st.SizeY
	if gr.WKT = ds.Projection(); gr.WKT == "" {
		err = ErrUndefinedCRS
		return
	}
	if gr.GeoTransform, err = ds.GeoTransform(); err != nil {
		err = fmt.Errorf("%w: %v", ErrUndefinedCRS, err)
	}
	return
}

// 读取单个波段（1起始）的整幅数据，buf类型决定读取的数据类型
func readBand(ds *godal.Dataset, idx int, buf interface{}, w, h int) (err error) {
	bands := ds.Bands()
	if idx < 1 || idx > len(bands) {
		return ErrWrongTif
	}
	if err = bands[idx-1].IO(godal.IORead, 0, 0, buf, w, h); err != nil {
		log.Error("Raster:read band failed", zap.Int("band", idx), zap.Error(err))
		err = fmt.Errorf("%w: band %d", ErrTifReadFailed, idx)
	}
	return
}

// 在临时路径创建分块LZW压缩的GTiff，并写入网格信息
func createTif(path string, gr Grid, nBands int, dt godal.DataType) (ds *godal.Dataset, err error) {
	ds, err = godal.Create(godal.GTiff, path, nBands, dt, gr.Width, gr.Height, godal.CreationOption(LzwTiledOptions...))
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrTifWriteFailed, err)
		return
	}
	if err = ds.SetGeoTransform(gr.GeoTransform); err == nil {
		err = ds.SetProjection(gr.WKT)
	}
	if err != nil {
		ds.Close()
		ds = nil
		err = fmt.Errorf("%w: %v", ErrTifWriteFailed, err)
	}
	return
}

func writeBand(ds *godal.Dataset, idx int, buf interface{}, w, h int) (err error) {
	if err = ds.Bands()[idx-1].IO(godal.IOWrite, 0, 0, buf, w, h); err != nil {
		err = fmt.Errorf("%w: band %d: %v", ErrTifWriteFailed, idx, err)
	}
	return
}

// 先写临时文件并构建金字塔，完成后再重命名为正式文件，正式文件存在即视为缓存命中
func (g *Toolbox) writeAtomic(final string, alg godal.ResamplingAlg, write func(tmp string) (*godal.Dataset, error)) (err error) {
	tmp := utils.TmpSibling(final, TMP_TIF)
	ds, err := write(tmp)
	if err != nil {
		os.Remove(tmp)
		return
	}
	if e := ds.BuildOverviews(godal.Levels(g.opts.Overviews...), godal.Resampling(alg)); e != nil {
		log.Warn(g.logTag+"build overviews failed", zap.String("file", final), zap.Error(e))
	}
	if err = ds.Close(); err != nil {
		os.Remove(tmp)
		err = fmt.Errorf("%w: %v", ErrTifWriteFailed, err)
		return
	}
	if err = os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		err = fmt.Errorf("%w: %v", ErrTifWriteFailed, err)
	}
	return
}

func resamplingName(alg godal.ResamplingAlg) string {
	switch alg {
	case godal.Nearest:
		return "near"
	case godal.Bilinear:
		return "bilinear"
	case godal.Average:
		return "average"
	}
	return "near"
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
