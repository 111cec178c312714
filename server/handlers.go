package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/wgdzlh/floodtiles"

	"github.com/gin-gonic/gin"
)

const tileExt = ".png"

func statusOf(err error) int {
	switch {
	case errors.Is(err, floodtiles.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, floodtiles.ErrInvalidParam):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}

// 解析 /:key/tiles/:z/:x/:y.png 及 colormap/min/max 参数
func parseTileRequest(c *gin.Context) (req floodtiles.TileRequest, ok bool) {
	y, found := strings.CutSuffix(c.Param("y"), tileExt)
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tile must end with " + tileExt})
		return
	}
	var zxy [3]uint32
	for i, s := range []string{c.Param("z"), c.Param("x"), y} {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tile coordinate: " + s})
			return
		}
		zxy[i] = uint32(v)
	}
	req = floodtiles.TileRequest{
		Key:      c.Param("key"),
		Z:        zxy[0],
		X:        zxy[1],
		Y:        zxy[2],
		Colormap: c.Query("colormap"),
	}
	for name, dst := range map[string]**float64{"min": &req.VMin, "max": &req.VMax} {
		if s := c.Query(name); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
				return
			}
			*dst = &v
		}
	}
	ok = true
	return
}

func (s *Server) handleTile(c *gin.Context) {
	req, ok := parseTileRequest(c)
	if !ok {
		return
	}
	buf, err := s.tiles.Tile(req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", buf)
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.session)
}

func (s *Server) handleWatershed(c *gin.Context) {
	if s.session == nil || s.session.WatershedID == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no watershed selected"})
		return
	}
	fp, err := s.watersheds.Footprint(s.cfg.Watershed.Path, *s.session.WatershedID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, floodtiles.FootprintCollection(fp))
}

func (s *Server) handleCandidates(c *gin.Context) {
	b, err := s.watersheds.ImageBounds(s.cfg.Model.InputPath)
	if err != nil {
		abortWithError(c, err)
		return
	}
	fps, err := s.watersheds.Candidates(s.cfg.Watershed.Path, b)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, floodtiles.FootprintCollection(fps...))
}
