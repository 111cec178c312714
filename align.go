package floodtiles

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wgdzlh/floodtiles/log"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// 对齐结果说明
type AlignReport struct {
	InputGrid   Grid
	OutputGrid  Grid
	Reprojected bool
	Resampled   bool
}

// 将输入影像对齐到输出影像的网格：坐标系不同则重投影，尺寸或仿射参数不同则按输出网格重采样。
// 对齐后的输入为内存VRT，不落盘；输出影像不做任何修改。alg默认双线性。
func (g *Toolbox) Align(inputPath, outputPath string, alg ...godal.ResamplingAlg) (in, out *Raster, err error) {
	in, out, _, err = g.align(inputPath, outputPath, alg...)
	return
}

func (g *Toolbox) align(inputPath, outputPath string, alg ...godal.ResamplingAlg) (in, out *Raster, rep AlignReport, err error) {
	ra := godal.Bilinear
	if len(alg) > 0 {
		ra = alg[0]
	}
	if out, err = OpenRaster(outputPath); err != nil {
		return
	}
	if in, err = OpenRaster(inputPath); err != nil {
		out.Close()
		out = nil
		return
	}
	rep.InputGrid, rep.OutputGrid = in.Grid, out.Grid
	same, err := g.sameCRS(in.Grid.WKT, out.Grid.WKT)
	if err != nil {
		in.Close()
		out.Close()
		in, out = nil, nil
		return
	}
	rep.Reprojected = !same
	rep.Resampled = !in.Grid.SameShape(out.Grid) || !in.Grid.SameTransform(out.Grid)
	if !rep.Reprojected && !rep.Resampled {
		log.Info(g.logTag+"rasters already aligned", zap.Int("width", out.Grid.Width), zap.Int("height", out.Grid.Height))
		return
	}
	log.Info(g.logTag+"align input to output grid", zap.Bool("reproject", rep.Reprojected), zap.Bool("resample", rep.Resampled),
		zap.String("resampling", resamplingName(ra)))
	ext := out.Grid.Extent()
	switches := []string{
		"-of", "VRT",
		"-t_srs", out.Grid.WKT,
		"-te", fmtFloat(ext[0]), fmtFloat(ext[1]), fmtFloat(ext[2]), fmtFloat(ext[3]),
		"-ts", strconv.Itoa(out.Grid.Width), strconv.Itoa(out.Grid.Height),
		"-r", resamplingName(ra),
	}
	vrt, e := in.Dataset.Warp("", switches)
	if e != nil {
		log.Error(g.logTag+"warp input failed", zap.Error(e))
		in.Close()
		out.Close()
		in, out = nil, nil
		err = fmt.Errorf("%w: %v", ErrWarpFailed, e)
		return
	}
	aligned := &Raster{Dataset: vrt, Path: in.Path, Bands: in.Bands, DataType: in.DataType, src: in.Dataset}
	aligned.Grid, err = gridOf(vrt)
	if err == nil && (!aligned.Grid.SameShape(out.Grid) || !aligned.Grid.SameTransform(out.Grid)) {
		err = ErrGridMismatch
	}
	if err != nil {
		aligned.Close()
		out.Close()
		in, out = nil, nil
		return
	}
	in = aligned
	return
}

// 不确定度值域检查：最大值在(1,255]时视为0~255量化并除以255；大于255时原样返回并标记可疑。
// NaN不参与最大值计算且保持为NaN。
func NormalizeRange(band []float64) (out []float64, suspicious bool) {
	out = band
	mx := nanMax(band)
	if math.IsNaN(mx) || mx <= 1 {
		return
	}
	if mx > 255 {
		suspicious = true
		return
	}
	out = make([]float64, len(band))
	floats.ScaleTo(out, 1.0/255, band)
	return
}

// 按声明的值域线性映射到[0,1]并截断
func ScaleToUnit(band []float64, declared [2]float64) (out []float64, err error) {
	span := declared[1] - declared[0]
	if span <= 0 {
		err = ErrWrongValueRange
		return
	}
	out = make([]float64, len(band))
	copy(out, band)
	floats.AddConst(-declared[0], out)
	floats.Scale(1/span, out)
	for i, v := range out {
		if v < 0 {
			out[i] = 0
		} else if v > 1 {
			out[i] = 1
		}
	}
	return
}

// 忽略NaN的最大值，全为NaN或为空时返回NaN
func nanMax(band []float64) float64 {
	if len(band) == 0 {
		return math.NaN()
	}
	return floats.Max(band)
}

// 校验输入、输出影像：对齐并检查不确定度值域，结果写日志
func (g *Toolbox) ValidateInputs(inputPath, outputPath string) (rep AlignReport, uncMax float64, suspicious bool, err error) {
	in, out, rep, err := g.align(inputPath, outputPath)
	if err != nil {
		return
	}
	defer in.Close()
	defer out.Close()
	if out.Bands < UNCERTAINTY_BAND {
		err = ErrWrongTif
		return
	}
	buf := make([]float64, out.Grid.Width*out.Grid.Height)
	if err = readBand(out.Dataset, UNCERTAINTY_BAND, buf, out.Grid.Width, out.Grid.Height); err != nil {
		return
	}
	uncMax = nanMax(buf)
	_, suspicious = NormalizeRange(buf)
	log.Info(g.logTag+"validated inputs",
		zap.Int("inputBands", in.Bands), zap.Int("outputBands", out.Bands),
		zap.Ints("inputShape", []int{rep.InputGrid.Width, rep.InputGrid.Height}),
		zap.Ints("outputShape", []int{rep.OutputGrid.Width, rep.OutputGrid.Height}),
		zap.Bool("reprojected", rep.Reprojected), zap.Bool("resampled", rep.Resampled),
		zap.Float64("uncertaintyMax", uncMax), zap.Bool("suspicious", suspicious))
	if suspicious {
		log.Warn(g.logTag+"uncertainty exceeds 255, left unchanged", zap.Float64("max", uncMax))
	}
	return
}
