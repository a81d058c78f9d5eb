package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/pathmanager"
)

// PublicHandlers serves the feed/media/image surface anypod exposes to
// podcast clients (spec §6.9's public routes).
type PublicHandlers struct {
	paths  *pathmanager.PathManager
	logger zerolog.Logger
}

func NewPublicHandlers(paths *pathmanager.PathManager, logger zerolog.Logger) *PublicHandlers {
	return &PublicHandlers{paths: paths, logger: logger.With().Str("component", "public_handlers").Logger()}
}

func (h *PublicHandlers) RegisterRoutes(e *echo.Echo) {
	e.GET("/feeds/:name", h.getFeedXML)
	e.GET("/media/:feedID/:filename", h.getMedia)
	e.GET("/images/:name", h.getFeedImage)
	e.GET("/images/:feedID/downloads/:filename", h.getDownloadImage)
}

// getFeedXML serves GET /feeds/<feed_id>.xml.
func (h *PublicHandlers) getFeedXML(c echo.Context) error {
	feedID, ok := stripSuffix(c.Param("name"), ".xml")
	if !ok || !safeSegment(feedID) {
		return echo.NewHTTPError(http.StatusNotFound, "feed not found")
	}
	path := h.paths.FeedXMLPath(feedID)
	if !fileExists(path) {
		return echo.NewHTTPError(http.StatusNotFound, "feed not found")
	}
	return c.File(path)
}

// getMedia serves GET /media/<feed_id>/<download_id>.<ext>.
func (h *PublicHandlers) getMedia(c echo.Context) error {
	feedID := c.Param("feedID")
	filename := c.Param("filename")
	if !safeSegment(feedID) || !fileExistsUnder(h.paths.MediaDir(feedID), filename) {
		return echo.NewHTTPError(http.StatusNotFound, "media not found")
	}
	return c.File(h.paths.MediaDir(feedID) + "/" + filename)
}

// getFeedImage serves GET /images/<feed_id>.<ext>.
func (h *PublicHandlers) getFeedImage(c echo.Context) error {
	name := c.Param("name")
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	feedID, ext := name[:idx], name[idx+1:]
	if !safeSegment(feedID) || !safeSegment(ext) {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	path := h.paths.FeedImagePath(feedID, ext)
	if !fileExists(path) {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	return c.File(path)
}

// getDownloadImage serves GET /images/<feed_id>/downloads/<download_id>.jpg.
func (h *PublicHandlers) getDownloadImage(c echo.Context) error {
	feedID := c.Param("feedID")
	filename := c.Param("filename")
	if !safeSegment(feedID) || !fileExistsUnder(h.paths.DownloadImageDir(feedID), filename) {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	return c.File(h.paths.DownloadImageDir(feedID) + "/" + filename)
}

func stripSuffix(s, suffix string) (string, bool) {
	if !strings.HasSuffix(s, suffix) {
		return "", false
	}
	return strings.TrimSuffix(s, suffix), true
}
