package floodtiles

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/wgdzlh/floodtiles/log"
	"github.com/wgdzlh/floodtiles/utils"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 生成网页地图用的衍生数据（降采样、调色、透明度掩膜及金字塔），已存在的衍生数据直接跳过。
// 各衍生数据互相独立，单个失败不影响其余，所有失败合并返回。
func (g *Toolbox) Optimize(inputPath, outputPath, cacheDir string, factor int) (set *DerivativeSet, err error) {
	set = NewDerivativeSet(cacheDir)
	missing := map[DerivativeKey]bool{}
	for _, k := range AllDerivatives {
		if !g.opts.Force && utils.FileExists(set.Paths[k]) {
			set.Cached = append(set.Cached, k)
			continue
		}
		missing[k] = true
	}
	if len(missing) == 0 {
		log.Info(g.logTag+"all derivatives cached", zap.String("dir", cacheDir))
		return
	}
	if err = os.MkdirAll(cacheDir, os.ModePerm); err != nil {
		err = fmt.Errorf("%w: %v", ErrIO, err)
		return
	}
	log.Info(g.logTag+"start optimize", zap.String("input", inputPath), zap.String("output", outputPath),
		zap.Int("factor", factor), zap.Int("missing", len(missing)))

	// 分类与不确定度只依赖输出影像，输入影像仅在生成input_rgb时打开、对齐
	out, err := OpenRaster(outputPath)
	if err != nil {
		return
	}
	defer out.Close()
	dst, err := out.Grid.Downsample(factor)
	if err != nil {
		return
	}

	var errs []error
	done := func(k DerivativeKey, e error) {
		if e != nil {
			log.Error(g.logTag+"derivative failed", zap.String("key", string(k)), zap.Error(e))
			errs = append(errs, fmt.Errorf("%s: %w", k, e))
		} else {
			set.Written = append(set.Written, k)
			log.Info(g.logTag+"derivative written", zap.String("key", string(k)), zap.String("file", set.Paths[k]))
		}
		if g.opts.OnStep != nil {
			g.opts.OnStep(k)
		}
	}
	if missing[InputRGB] {
		done(InputRGB, g.alignAndOptimizeInput(inputPath, outputPath, dst, set.Paths[InputRGB]))
	}
	if missing[ClassRaw] || missing[ClassRGB] {
		g.optimizeClass(out, dst, set, missing, done)
	}
	if missing[UncertaintyFloat] || missing[UncertaintyMaskRGBA] {
		g.optimizeUncertainty(out, dst, set, missing, done)
	}
	err = errors.Join(errs...)
	log.Info(g.logTag+"end optimize", zap.Int("written", len(set.Written)), zap.Int("cached", len(set.Cached)),
		zap.Int("failed", len(errs)))
	return
}

func (g *Toolbox) alignAndOptimizeInput(inputPath, outputPath string, dst Grid, final string) error {
	in, ref, err := g.Align(inputPath, outputPath)
	if err != nil {
		return err
	}
	defer in.Close()
	ref.Close()
	return g.optimizeInput(in, dst, final)
}

// 输入影像：双线性降采样，仅保留RGB三个波段并拉伸为Byte
func (g *Toolbox) optimizeInput(in *Raster, dst Grid, final string) error {
	for _, b := range g.opts.RGBBands {
		if b < 1 || b > in.Bands {
			return fmt.Errorf("%w: rgb band %d of %d", ErrWrongTif, b, in.Bands)
		}
	}
	switches := []string{
		"-of", "GTiff",
		"-outsize", strconv.Itoa(dst.Width), strconv.Itoa(dst.Height),
		"-r", resamplingName(godal.Bilinear),
		"-ot", "Byte",
	}
	for _, b := range g.opts.RGBBands {
		switches = append(switches, "-b", strconv.Itoa(b))
	}
	if r := g.opts.RGBRange; r != nil {
		switches = append(switches, "-scale", fmtFloat(r[0]), fmtFloat(r[1]), "0", "255")
	} else if in.DataType != godal.Byte {
		switches = append(switches, "-scale")
	}
	for _, co := range LzwTiledOptions {
		switches = append(switches, "-co", co)
	}
	return g.writeAtomic(final, godal.Average, func(tmp string) (ds *godal.Dataset, err error) {
		if ds, err = in.Dataset.Translate(tmp, switches); err != nil {
			err = fmt.Errorf("%w: %v", ErrTifWriteFailed, err)
		}
		return
	})
}

// 降采样到目标网格后读取单个波段
func (g *Toolbox) readDownsampled(r *Raster, band int, dst Grid, alg godal.ResamplingAlg, buf interface{}) (err error) {
	if band > r.Bands {
		return fmt.Errorf("%w: band %d of %d", ErrWrongTif, band, r.Bands)
	}
	mem, err := r.Dataset.Translate("", []string{
		"-of", "MEM",
		"-b", strconv.Itoa(band),
		"-outsize", strconv.Itoa(dst.Width), strconv.Itoa(dst.Height),
		"-r", resamplingName(alg),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTifReadFailed, err)
	}
	defer mem.Close()
	return readBand(mem, 1, buf, dst.Width, dst.Height)
}

// 分类波段：最近邻降采样，保存原始代码及调色后的RGB
func (g *Toolbox) optimizeClass(out *Raster, dst Grid, set *DerivativeSet, missing map[DerivativeKey]bool, done func(DerivativeKey, error)) {
	codes := make([]uint8, dst.Width*dst.Height)
	if err := g.readDownsampled(out, CLASS_BAND, dst, godal.Nearest, codes); err != nil {
		for _, k := range []DerivativeKey{ClassRaw, ClassRGB} {
			if missing[k] {
				done(k, err)
			}
		}
		return
	}
	if missing[ClassRaw] {
		done(ClassRaw, g.writeAtomic(set.Paths[ClassRaw], godal.Nearest, func(tmp string) (ds *godal.Dataset, err error) {
			if ds, err = createTif(tmp, dst, 1, godal.Byte); err != nil {
				return
			}
			if err = writeBand(ds, 1, codes, dst.Width, dst.Height); err == nil {
				err = ds.Bands()[0].SetNoData(CLASS_NODATA)
			}
			if err != nil {
				ds.Close()
				ds = nil
			}
			return
		}))
	}
	if missing[ClassRGB] {
		r, gr, b := ClassToRGB(codes)
		done(ClassRGB, g.writeAtomic(set.Paths[ClassRGB], godal.Nearest, func(tmp string) (ds *godal.Dataset, err error) {
			if ds, err = createTif(tmp, dst, 3, godal.Byte); err != nil {
				return
			}
			for i, buf := range [][]uint8{r, gr, b} {
				if err = writeBand(ds, i+1, buf, dst.Width, dst.Height); err != nil {
					break
				}
				if err = ds.Bands()[i].SetNoData(CLASS_NODATA); err != nil {
					break
				}
			}
			if err != nil {
				ds.Close()
				ds = nil
			}
			return
		}))
	}
}

// 不确定度波段：双线性降采样并归一化，保存浮点值及RGBA掩膜
func (g *Toolbox) optimizeUncertainty(out *Raster, dst Grid, set *DerivativeSet, missing map[DerivativeKey]bool, done func(DerivativeKey, error)) {
	unc := make([]float64, dst.Width*dst.Height)
	err := g.readDownsampled(out, UNCERTAINTY_BAND, dst, godal.Bilinear, unc)
	if err == nil {
		unc, err = g.normalize(unc)
	}
	if err != nil {
		for _, k := range []DerivativeKey{UncertaintyFloat, UncertaintyMaskRGBA} {
			if missing[k] {
				done(k, err)
			}
		}
		return
	}
	if missing[UncertaintyFloat] {
		vals := make([]float32, len(unc))
		for i, v := range unc {
			vals[i] = float32(v)
		}
		done(UncertaintyFloat, g.writeAtomic(set.Paths[UncertaintyFloat], godal.Average, func(tmp string) (ds *godal.Dataset, err error) {
			if ds, err = createTif(tmp, dst, 1, godal.Float32); err != nil {
				return
			}
			if err = writeBand(ds, 1, vals, dst.Width, dst.Height); err != nil {
				ds.Close()
				ds = nil
			}
			return
		}))
	}
	if missing[UncertaintyMaskRGBA] {
		alpha := g.alphaMask(unc)
		done(UncertaintyMaskRGBA, g.writeAtomic(set.Paths[UncertaintyMaskRGBA], godal.Average, func(tmp string) (ds *godal.Dataset, err error) {
			if ds, err = createTif(tmp, dst, 4, godal.Byte); err != nil {
				return
			}
			for i, c := range MaskColor {
				if err = writeBand(ds, i+1, constBand(c, len(alpha)), dst.Width, dst.Height); err != nil {
					break
				}
			}
			if err == nil {
				err = writeBand(ds, 4, alpha, dst.Width, dst.Height)
			}
			if err == nil {
				err = ds.Bands()[3].SetColorInterp(godal.CIAlpha)
			}
			if err != nil {
				ds.Close()
				ds = nil
			}
			return
		}))
	}
}

// 有声明值域时按值域映射，否则按启发式归一化
func (g *Toolbox) normalize(unc []float64) (out []float64, err error) {
	if r := g.opts.UncertaintyRange; r != nil {
		return ScaleToUnit(unc, *r)
	}
	out, suspicious := NormalizeRange(unc)
	if suspicious {
		log.Warn(g.logTag+"uncertainty max exceeds 255, values left unchanged")
	}
	return
}

func constBand(v uint8, n int) []uint8 {
	buf := make([]uint8, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}
