package floodtiles

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wgdzlh/floodtiles/log"
	"github.com/wgdzlh/floodtiles/utils"

	"github.com/lukeroth/gdal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

func vectorDriverName(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case FILE_EXT_GEOJSON, FILE_EXT_JSON:
		return GEOJSON_DRIVER_NAME
	case FILE_EXT_GPKG:
		return GPKG_DRIVER_NAME
	}
	return SHP_DRIVER_NAME
}

// 流域矢量图层的遍历上下文
type vectorLayer struct {
	ds      gdal.DataSource
	layer   gdal.Layer
	idIdx   int
	ref     gdal.SpatialReference
	toWgs84 bool // 图层坐标系不是4326时需要转换
	dec     *encoding.Decoder
}

func (g *Toolbox) openVector(path string) (vl *vectorLayer, err error) {
	if !utils.FileExists(path) {
		err = fmt.Errorf("%w: %s", ErrGdalDriverOpen, path)
		return
	}
	driver := gdal.OGRDriverByName(vectorDriverName(path))
	ds, ok := driver.Open(path, 0)
	if !ok {
		err = fmt.Errorf("%w: %s", ErrGdalDriverOpen, path)
		return
	}
	vl = &vectorLayer{ds: ds, layer: ds.LayerByIndex(0)}
	if vl.idIdx = vl.layer.Definition().FieldIndex(g.opts.IDField); vl.idIdx < 0 {
		ds.Destroy()
		vl = nil
		err = fmt.Errorf("%w: %s", ErrColumnMissing, g.opts.IDField)
		return
	}
	vl.ref = vl.layer.SpatialReference()
	if wkt, _ := vl.ref.ToWKT(); wkt != "" {
		srid, e := g.getSrid(vl.ref)
		vl.toWgs84 = e != nil || srid != UNIVERSAL_SRID
	}
	if enc := utils.GetShpEncoding(path); !utils.IsUTF8(enc) {
		vl.dec = utils.GetDecoder(enc)
	}
	return
}

func (vl *vectorLayer) Destroy() {
	vl.ds.Destroy()
}

// 读取要素属性，geo（调用方持有）转换为4326后作为Footprint的几何
func (g *Toolbox) toFootprint(vl *vectorLayer, feature *gdal.Feature, geo gdal.Geometry) (fp Footprint, err error) {
	fp.ID = feature.FieldAsInteger64(vl.idIdx)
	if vl.toWgs84 {
		var tRef gdal.SpatialReference
		if tRef, err = g.getSridRef(UNIVERSAL_SRID); err != nil {
			return
		}
		if err = geo.TransformTo(tRef); err != nil {
			log.Error(g.logTag+"geo transform failed", zap.Int64("id", fp.ID), zap.Error(err))
			return
		}
	}
	simp := g.simplify(geo)
	defer simp.Destroy()
	gj, err := geojson.UnmarshalGeometry(utils.S2B(simp.ToJSON()))
	if err != nil {
		return
	}
	fp.Geometry = gj.Geometry()
	def := vl.layer.Definition()
	fp.Properties = make(map[string]any, def.FieldCount())
	for i := 0; i < def.FieldCount(); i++ {
		fd := def.FieldDefinition(i)
		switch fd.Type() {
		case gdal.FT_Integer, gdal.FT_Integer64:
			fp.Properties[fd.Name()] = feature.FieldAsInteger64(i)
		case gdal.FT_Real:
			fp.Properties[fd.Name()] = feature.FieldAsFloat64(i)
		default:
			fp.Properties[fd.Name()] = utils.DecodeAttr(feature.FieldAsString(i), vl.dec)
		}
	}
	return
}

// 获取与范围（4326）相交的候选流域
func (g *Toolbox) Candidates(path string, b orb.Bound) (fps []Footprint, err error) {
	vl, err := g.openVector(path)
	if err != nil {
		return
	}
	defer vl.Destroy()
	ref, err := g.getSridRef(UNIVERSAL_SRID)
	if err != nil {
		return
	}
	box, err := gdal.CreateFromWKT(PointsToWkt(b.Min[0], b.Max[0], b.Min[1], b.Max[1]), ref)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfiguration, err)
		return
	}
	gc := []destroyable{box}
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	if vl.toWgs84 {
		if err = box.TransformTo(vl.ref); err != nil {
			return
		}
	}
	env := box.Envelope()
	vl.layer.SetSpatialFilterRect(env.MinX(), env.MinY(), env.MaxX(), env.MaxY())
	var (
		feature *gdal.Feature
		fp      Footprint
		e       error
	)
	for {
		if feature = vl.layer.NextFeature(); feature == nil {
			break
		}
		gc = append(gc, *feature)
		geo := feature.Geometry()
		if !geo.Intersects(box) {
			continue
		}
		geo = geo.Clone()
		gc = append(gc, geo)
		if fp, e = g.toFootprint(vl, feature, geo); e != nil {
			log.Error(g.logTag+"skip unreadable watershed", zap.Error(e))
			continue
		}
		fps = append(fps, fp)
	}
	log.Info(g.logTag+"got candidate watersheds", zap.String("file", path), zap.Int("cnt", len(fps)))
	return
}

// 按id获取流域，同一id的多个要素合并为一个几何
func (g *Toolbox) Footprint(path string, id int64) (fp Footprint, err error) {
	vl, err := g.openVector(path)
	if err != nil {
		return
	}
	defer vl.Destroy()
	var (
		first *gdal.Feature
		parts []gdal.Geometry
		gc    []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for {
		feature := vl.layer.NextFeature()
		if feature == nil {
			break
		}
		gc = append(gc, *feature)
		if feature.FieldAsInteger64(vl.idIdx) != id {
			continue
		}
		if first == nil {
			first = feature
		}
		parts = append(parts, feature.Geometry())
	}
	if first == nil {
		err = fmt.Errorf("%w: %d", ErrFootprintNotFound, id)
		return
	}
	merged := mergeGeometries(parts)
	gc = append(gc, merged)
	if len(parts) > 1 {
		log.Info(g.logTag+"merged watershed parts", zap.Int64("id", id), zap.Int("parts", len(parts)))
	}
	return g.toFootprint(vl, first, merged)
}

// 影像范围（4326）
func (g *Toolbox) ImageBounds(path string) (b orb.Bound, err error) {
	r, err := OpenRaster(path)
	if err != nil {
		return
	}
	defer r.Close()
	return g.rasterBound(r)
}

func (g *Toolbox) rasterBound(r *Raster) (b orb.Bound, err error) {
	ref, err := g.wktRef(r.Grid.WKT)
	if err != nil {
		return
	}
	defer ref.Destroy()
	geo, err := gdal.CreateFromWKT(ExtentToWkt(r.Grid.Extent()), ref)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUndefinedCRS, err)
		return
	}
	defer geo.Destroy()
	tRef, err := g.getSridRef(UNIVERSAL_SRID)
	if err != nil {
		return
	}
	if err = geo.TransformTo(tRef); err != nil {
		log.Error(g.logTag+"raster extent transform failed", zap.String("file", r.Path), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrUndefinedCRS, err)
		return
	}
	env := geo.Envelope()
	b = orb.Bound{Min: orb.Point{env.MinX(), env.MinY()}, Max: orb.Point{env.MaxX(), env.MaxY()}}
	return
}

// 转为GeoJSON要素集合
func FootprintCollection(fps ...Footprint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, fp := range fps {
		f := geojson.NewFeature(fp.Geometry)
		f.ID = fp.ID
		for k, v := range fp.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}
