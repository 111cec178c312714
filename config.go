package floodtiles

const (
	FILE_EXT_SHP     = ".shp"
	FILE_EXT_JSON    = ".json"
	FILE_EXT_GEOJSON = ".geojson"
	FILE_EXT_GPKG    = ".gpkg"

	SHP_DRIVER_NAME     = "ESRI Shapefile"
	GEOJSON_DRIVER_NAME = "GeoJSON"
	GPKG_DRIVER_NAME    = "GPKG"

	UNIVERSAL_SRID    = 4326
	WEB_MERCATOR_SRID = 3857

	CACHE_DIR = "dataset/cache"

	OPT_INPUT_FILE       = "optimized_input.tif"
	OPT_CLASS_RGB_FILE   = "optimized_class_rgb.tif"
	OPT_CLASS_RAW_FILE   = "optimized_class_raw.tif"
	OPT_UNCERTAINTY_FILE = "optimized_uncertainty.tif"
	OPT_UNC_MASK_FILE    = "optimized_uncertainty_mask.tif"

	DEFAULT_FACTOR = 4

	// 不确定度掩膜的阈值与透明度
	THRESHOLD_LOW  = 0.2
	THRESHOLD_HIGH = 0.8
	ALPHA_MID      = 80
	ALPHA_HIGH     = 180

	// 输出影像的波段约定（1起始）
	CLASS_BAND       = 1
	UNCERTAINTY_BAND = 2

	CLASS_NODATA = 0

	TILE_SIZE       = 256
	OVERZOOM_LEVELS = 3
	MAX_ZOOM        = 24

	// 网格比较容差（相对像元大小）
	GRID_TOLERANCE = 1e-6

	// 地图中心：有影像时的缩放级别，及无影像时的默认值
	CENTER_ZOOM  = 11
	DEFAULT_LAT  = 20
	DEFAULT_LON  = 0
	DEFAULT_ZOOM = 2

	HYBAS_ID_FIELD = "HYBAS_ID"

	TMP_TIF = "%s.%s.tmp.tif"
)

var (
	// Sentinel-2 B4/B3/B2
	DefaultRGBBands = [3]int{4, 3, 2}

	OverviewLevels = []int{2, 4, 8, 16}

	// 不确定度掩膜的警示色（黄）
	MaskColor = [3]uint8{255, 255, 0}

	LzwTiledOptions = []string{"TILED=YES", "COMPRESS=LZW"}
)
