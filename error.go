package floodtiles

import (
	"errors"
	"fmt"
)

// 错误类别，具体错误通过%w包装类别，调用方用errors.Is判断
var (
	ErrConfiguration = errors.New("configuration error")
	ErrIO            = errors.New("raster io error")
	ErrAlignment     = errors.New("alignment error")
	ErrNotFound      = errors.New("not found")
	ErrRender        = errors.New("render error")
	ErrInvalidParam  = errors.New("invalid parameter")
)

var (
	ErrUndefinedCRS      = fmt.Errorf("%w: raster crs undefined", ErrConfiguration)
	ErrWrongTif          = fmt.Errorf("%w: tif bands not enough", ErrConfiguration)
	ErrWrongFactor       = fmt.Errorf("%w: downsample factor must be positive", ErrConfiguration)
	ErrEmptyGrid         = fmt.Errorf("%w: downsampled grid is empty", ErrConfiguration)
	ErrVoidSrid          = fmt.Errorf("%w: vector layer with void srid", ErrConfiguration)
	ErrColumnMissing     = fmt.Errorf("%w: vector layer missing id field", ErrConfiguration)
	ErrInvalidTif        = fmt.Errorf("%w: invalid tif", ErrIO)
	ErrTifReadFailed     = fmt.Errorf("%w: tif read failed", ErrIO)
	ErrTifWriteFailed    = fmt.Errorf("%w: tif write failed", ErrIO)
	ErrGdalDriverOpen    = fmt.Errorf("%w: gdal driver open err", ErrIO)
	ErrWarpFailed        = fmt.Errorf("%w: warp failed", ErrAlignment)
	ErrGridMismatch      = fmt.Errorf("%w: grids still differ after warp", ErrAlignment)
	ErrImageNotFound     = fmt.Errorf("%w: Image not found", ErrNotFound)
	ErrTileOutOfRange    = fmt.Errorf("%w: tile out of range", ErrNotFound)
	ErrFootprintNotFound = fmt.Errorf("%w: watershed not found", ErrNotFound)
	ErrUnknownColormap   = fmt.Errorf("%w: unknown colormap", ErrInvalidParam)
	ErrWrongValueRange   = fmt.Errorf("%w: min must be less than max", ErrInvalidParam)
	ErrPngEncode         = fmt.Errorf("%w: png encode failed", ErrRender)
)
