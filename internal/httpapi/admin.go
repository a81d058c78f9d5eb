package httpapi

import (
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/coordinator"
	"github.com/thurstonsan/anypod/internal/manualsubmission"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/scheduler"
	"github.com/thurstonsan/anypod/internal/store"
)

// AdminHandlers implements anypod's admin control surface (spec §6.9),
// plus the list/get feed endpoints the distilled spec's route table omits
// but an operator dashboard needs.
type AdminHandlers struct {
	feeds      *store.FeedStore
	downloads  *store.DownloadStore
	paths      *pathmanager.PathManager
	coord      *coordinator.Coordinator
	runner     *scheduler.ManualRunner
	submission *manualsubmission.Service
	feedCfgs   map[string]config.FeedConfig
	logger     zerolog.Logger
}

func NewAdminHandlers(
	feeds *store.FeedStore,
	downloads *store.DownloadStore,
	paths *pathmanager.PathManager,
	coord *coordinator.Coordinator,
	runner *scheduler.ManualRunner,
	submission *manualsubmission.Service,
	feedCfgs map[string]config.FeedConfig,
	logger zerolog.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		feeds: feeds, downloads: downloads, paths: paths, coord: coord,
		runner: runner, submission: submission, feedCfgs: feedCfgs,
		logger: logger.With().Str("component", "admin_handlers").Logger(),
	}
}

func (h *AdminHandlers) RegisterRoutes(g *echo.Group) {
	g.GET("/feeds", h.listFeeds)
	g.GET("/feeds/:feedID", h.getFeed)
	g.POST("/feeds/:feedID/refresh", h.refreshFeed)
	g.POST("/feeds/:feedID/reset-errors", h.resetErrors)
	g.POST("/feeds/:feedID/downloads", h.submitDownload)
	g.GET("/feeds/:feedID/downloads", h.listDownloads)
	g.GET("/feeds/:feedID/downloads/:downloadID", h.getDownload)
	g.POST("/feeds/:feedID/downloads/:downloadID/skip", h.skipDownload)
	g.DELETE("/feeds/:feedID/downloads/:downloadID", h.deleteDownload)
}

func (h *AdminHandlers) listFeeds(c echo.Context) error {
	feeds, err := h.feeds.ListFeeds(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, feeds)
}

func (h *AdminHandlers) getFeed(c echo.Context) error {
	feed, err := h.feeds.GetFeed(c.Request().Context(), c.Param("feedID"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, feed)
}

// refreshFeed implements POST /admin/feeds/<feed_id>/refresh.
func (h *AdminHandlers) refreshFeed(c echo.Context) error {
	feedID := c.Param("feedID")
	cfg, ok := h.feedCfgs[feedID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "feed not found")
	}
	if !cfg.Enabled {
		return echo.NewHTTPError(http.StatusBadRequest, "feed is disabled")
	}
	h.runner.Trigger(feedID, cfg)
	return c.JSON(http.StatusAccepted, map[string]string{"feed_id": feedID, "status": "triggered"})
}

// resetErrors implements POST /admin/feeds/<feed_id>/reset-errors.
func (h *AdminHandlers) resetErrors(c echo.Context) error {
	feedID := c.Param("feedID")
	if _, ok := h.feedCfgs[feedID]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "feed not found")
	}
	errStatus := model.StatusError
	n, err := h.downloads.RequeueDownloads(c.Request().Context(), feedID, nil, &errStatus)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"feed_id": feedID, "reset_count": n})
}

// submitDownload implements POST /admin/feeds/<feed_id>/downloads {url}.
func (h *AdminHandlers) submitDownload(c echo.Context) error {
	feedID := c.Param("feedID")
	cfg, ok := h.feedCfgs[feedID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "feed not found")
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	result, err := h.submission.Submit(c.Request().Context(), feedID, cfg, body.URL)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"download_id": result.DownloadID,
		"status":      result.FinalStatus,
		"new":         result.WasNew,
		"message":     result.Message,
	})
}

// listDownloads implements GET /admin/feeds/<feed_id>/downloads?status=a,b,
// listing every download in the feed, optionally filtered to the given
// statuses. With no status filter, every status is returned.
func (h *AdminHandlers) listDownloads(c echo.Context) error {
	feedID := c.Param("feedID")

	statuses := model.AllDownloadStatuses
	if raw := c.QueryParam("status"); raw != "" {
		parsed := make([]model.DownloadStatus, 0, len(statuses))
		for _, part := range strings.Split(raw, ",") {
			st, err := model.ParseDownloadStatus(strings.TrimSpace(part))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			parsed = append(parsed, st)
		}
		statuses = parsed
	}

	downloads, err := h.downloads.ListByStatus(c.Request().Context(), feedID, statuses...)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, downloads)
}

// getDownload implements GET /admin/feeds/<feed_id>/downloads/<download_id>?fields=a,b.
func (h *AdminHandlers) getDownload(c echo.Context) error {
	feedID, downloadID := c.Param("feedID"), c.Param("downloadID")
	dl, err := h.downloads.GetDownload(c.Request().Context(), feedID, downloadID)
	if err != nil {
		return mapError(err)
	}

	fields := c.QueryParam("fields")
	if fields == "" {
		return c.JSON(http.StatusOK, dl)
	}
	return c.JSON(http.StatusOK, projectFields(dl, strings.Split(fields, ",")))
}

// skipDownload implements POST /admin/feeds/<feed_id>/downloads/<download_id>/skip,
// an operator override that excludes an item from future pruning/RSS
// candidate sets without deleting it (spec §4.2: any non-ARCHIVED -> SKIPPED).
func (h *AdminHandlers) skipDownload(c echo.Context) error {
	feedID, downloadID := c.Param("feedID"), c.Param("downloadID")
	if err := h.downloads.MarkSkipped(c.Request().Context(), feedID, downloadID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteDownload implements DELETE /admin/feeds/<feed_id>/downloads/<download_id>,
// manual feeds only.
func (h *AdminHandlers) deleteDownload(c echo.Context) error {
	feedID, downloadID := c.Param("feedID"), c.Param("downloadID")
	cfg, ok := h.feedCfgs[feedID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "feed not found")
	}
	if !cfg.IsManual {
		return echo.NewHTTPError(http.StatusBadRequest, "deletion is only supported on manual feeds")
	}

	ctx := c.Request().Context()
	dl, err := h.downloads.DeleteDownload(ctx, feedID, downloadID)
	if err != nil {
		return mapError(err)
	}

	if dl.Status == model.StatusDownloaded {
		if err := os.Remove(h.paths.MediaPath(feedID, dl.ID, dl.Ext)); err != nil && !os.IsNotExist(err) {
			h.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", downloadID).Msg("removing media file failed")
		}
	}
	if dl.ThumbnailExt != nil {
		if err := os.Remove(h.paths.DownloadImagePath(feedID, dl.ID)); err != nil && !os.IsNotExist(err) {
			h.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", downloadID).Msg("removing thumbnail failed")
		}
	}

	if err := h.coord.RegenerateRSS(ctx, feedID); err != nil {
		h.logger.Warn().Err(err).Str("feedID", feedID).Msg("regenerating rss after delete failed")
	}

	return c.NoContent(http.StatusNoContent)
}

// projectFields returns a map containing only the requested JSON fields of
// a Download, matching the spec's `?fields=a,b` selection.
func projectFields(dl *model.Download, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	v := reflect.ValueOf(*dl)
	t := v.Type()
	for _, requested := range fields {
		name := strings.TrimSpace(requested)
		for i := 0; i < t.NumField(); i++ {
			if strings.EqualFold(t.Field(i).Name, name) {
				out[t.Field(i).Name] = v.Field(i).Interface()
				break
			}
		}
	}
	return out
}

func mapError(err error) error {
	switch {
	case apperrors.IsKind(err, apperrors.KindDownloadNotFound), apperrors.IsKind(err, apperrors.KindFeedNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case apperrors.IsKind(err, apperrors.KindManualSubmissionUnsupported):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case apperrors.IsKind(err, apperrors.KindManualSubmissionUnavailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
