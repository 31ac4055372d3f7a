package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"filedrop/internal/server/database"
	"filedrop/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the filedrop API.
type Handler struct {
	uploads *service.UploadService
	auth    *service.AuthService
	db      *database.DB
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(uploads *service.UploadService, auth *service.AuthService, db *database.DB) *Handler {
	return &Handler{uploads: uploads, auth: auth, db: db}
}

// HandleLinkInfo handles GET /upload/:token.
// Returns the guest-facing view of a link so an uploader can render a form.
func (h *Handler) HandleLinkInfo(c echo.Context) error {
	info, err := h.uploads.ResolveLink(c.Request().Context(), c.Param("token"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleUpload handles POST /upload/:token.
// Accepts a multipart form with a "file" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	result, err := h.uploads.ProcessUpload(
		c.Request().Context(),
		c.Param("token"),
		fileHeader.Filename,
		src,
		fileHeader.Size,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// HandleLogin handles POST /api/login.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	session, err := h.auth.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// HandleLogout handles POST /api/logout. Idempotent.
func (h *Handler) HandleLogout(c echo.Context) error {
	token := bearerToken(c)
	if token != "" {
		if err := h.auth.Revoke(c.Request().Context(), token); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// HandleCreateLink handles POST /api/admin/links.
func (h *Handler) HandleCreateLink(c echo.Context) error {
	var req struct {
		Name           string `json:"name"`
		QuotaBytes     int64  `json:"quota_bytes"`
		ExpiresInHours *int   `json:"expires_in_hours"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	var expiresIn *time.Duration
	if req.ExpiresInHours != nil && *req.ExpiresInHours > 0 {
		d := time.Duration(*req.ExpiresInHours) * time.Hour
		expiresIn = &d
	}

	link, err := h.uploads.CreateLink(c.Request().Context(), req.Name, req.QuotaBytes, expiresIn)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, linkView(link))
}

// HandleListLinks handles GET /api/admin/links.
func (h *Handler) HandleListLinks(c echo.Context) error {
	links, err := h.uploads.ListLinks(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	views := make([]echo.Map, 0, len(links))
	for _, link := range links {
		views = append(views, linkView(link))
	}
	return c.JSON(http.StatusOK, views)
}

// HandleDeleteLink handles DELETE /api/admin/links/:id.
func (h *Handler) HandleDeleteLink(c echo.Context) error {
	if err := h.uploads.DeleteLink(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "link deleted"})
}

// HandleListLinkFiles handles GET /api/admin/links/:id/files.
func (h *Handler) HandleListLinkFiles(c echo.Context) error {
	files, err := h.uploads.ListLinkFiles(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, fileViews(files))
}

// HandleListUploads handles GET /api/admin/uploads.
func (h *Handler) HandleListUploads(c echo.Context) error {
	files, err := h.uploads.ListUploads(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, fileViews(files))
}

// HandleDownloadUpload handles GET /api/admin/uploads/:id/download.
// Serves the stored file under its original display name.
func (h *Handler) HandleDownloadUpload(c echo.Context) error {
	path, filename, err := h.uploads.DownloadFile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Attachment(path, filename)
}

// HandleDeleteUpload handles DELETE /api/admin/uploads/:id.
func (h *Handler) HandleDeleteUpload(c echo.Context) error {
	if err := h.uploads.DeleteUpload(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "upload deleted"})
}

// HandleChangePassword handles POST /api/admin/change-password.
func (h *Handler) HandleChangePassword(c echo.Context) error {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(req.NewPassword) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "password must be at least 6 characters long",
		})
	}

	adminID := AdminID(c)
	if err := h.auth.ChangePassword(c.Request().Context(), adminID, req.CurrentPassword, req.NewPassword); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// HandleStats handles GET /api/admin/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.uploads.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_links":        stats.TotalLinks,
		"active_links":       stats.ActiveLinks,
		"total_files":        stats.TotalFiles,
		"bytes_stored":       stats.BytesStored,
		"bytes_stored_human": humanizeBytes(stats.BytesStored),
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

func linkView(link *database.UploadLink) echo.Map {
	return echo.Map{
		"id":              link.ID,
		"token":           link.Token,
		"name":            link.Name,
		"quota_total":     link.QuotaTotal,
		"quota_used":      link.QuotaUsed,
		"quota_remaining": link.QuotaRemaining(),
		"state":           link.State(time.Now()).String(),
		"created_at":      link.CreatedAt,
		"expires_at":      link.ExpiresAt,
	}
}

func fileViews(files []*database.UploadedFile) []echo.Map {
	views := make([]echo.Map, 0, len(files))
	for _, f := range files {
		views = append(views, echo.Map{
			"id":                f.ID,
			"link_id":           f.LinkID,
			"original_filename": f.OriginalFilename,
			"size_bytes":        f.SizeBytes,
			"size_human":        humanizeBytes(f.SizeBytes),
			"uploaded_at":       f.UploadedAt,
		})
	}
	return views
}

// mapServiceError translates service-layer errors into HTTP responses.
// Expired and deleted links share one answer; storage and persistence
// failures are reported without internal detail.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrLinkNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "upload link not found"})
	case errors.Is(err, service.ErrLinkExpired), errors.Is(err, service.ErrLinkDeleted):
		return c.JSON(http.StatusGone, echo.Map{"error": "upload link is no longer available"})
	case errors.Is(err, service.ErrQuotaExceeded):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds the link's remaining quota",
		})
	case errors.Is(err, service.ErrInvalidFilename):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid filename"})
	case errors.Is(err, service.ErrSizeMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "uploaded size does not match declared size",
		})
	case errors.Is(err, service.ErrInvalidQuota), errors.Is(err, service.ErrInvalidName):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrFileNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "upload not found"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid username or password"})
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrSessionExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
