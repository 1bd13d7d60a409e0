package handler

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"registrar/internal/auth"
	"registrar/internal/export"
	"registrar/internal/metrics"
	"registrar/internal/photo"
	"registrar/internal/registration"
)

// PlaceholderPhotoURL is served in listings when a stored photo is gone.
const PlaceholderPhotoURL = "/placeholder-profile.png"

// formOverhead is the allowance for text fields and multipart framing on
// top of the photo ceiling.
const formOverhead = 1 << 20

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Admin configures the optional admin token flow. An empty Password
// disables it.
type Admin struct {
	Password   string
	Issuer     string
	SigningKey string
	TTL        time.Duration
}

type Handler struct {
	svc       *registration.Service
	photos    *photo.Store
	health    Pinger
	metrics   *metrics.Metrics
	log       *zap.Logger
	admin     Admin
	publicDir string
}

func New(svc *registration.Service, photos *photo.Store, health Pinger, m *metrics.Metrics, log *zap.Logger, admin Admin, publicDir string) *Handler {
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, photos: photos, health: health, metrics: m, log: log, admin: admin, publicDir: publicDir}
}

// registrationView adds the resolvable photo URL to a record.
type registrationView struct {
	registration.Registration
	PhotoURL string `json:"photo_url"`
}

func (h *Handler) view(r registration.Registration) registrationView {
	v := registrationView{Registration: r, PhotoURL: PlaceholderPhotoURL}
	if _, ok := h.photos.Resolve(r.Photo); ok {
		v.PhotoURL = photo.URL(r.Photo)
	}
	return v
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.health.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": true})
}

// ---------- Register ----------

// Register handles the multipart registration form with a single photo
// file in the "photo" field.
func (h *Handler) Register(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.photos.MaxBytes()+formOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		if tooLarge(err) {
			h.metrics.Registrations.WithLabelValues(metrics.OutcomeRejectedUpload).Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": photo.ErrTooLarge.Error()})
			return
		}
		h.metrics.Registrations.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required: " + err.Error()})
		return
	}

	var fh *multipart.FileHeader
	switch files := form.File["photo"]; len(files) {
	case 0:
	case 1:
		fh = files[0]
	default:
		h.metrics.Registrations.WithLabelValues(metrics.OutcomeRejectedUpload).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one photo is allowed"})
		return
	}

	sub := registration.SubmissionFromForm(url.Values(form.Value))
	rec, err := h.svc.Register(c.Request.Context(), sub, fh)
	if err != nil {
		h.registerFailed(c, err)
		return
	}

	h.metrics.Registrations.WithLabelValues(metrics.OutcomeCreated).Inc()
	h.log.Info("registration created", zap.String("id", rec.ID), zap.String("category", string(rec.Category)))
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful", "data": h.view(rec)})
}

func (h *Handler) registerFailed(c *gin.Context, err error) {
	var verr *registration.ValidationError
	switch {
	case errors.As(err, &verr):
		h.metrics.Registrations.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Map()})
	case errors.Is(err, photo.ErrTooLarge):
		h.metrics.Registrations.WithLabelValues(metrics.OutcomeRejectedUpload).Inc()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, photo.ErrNotImage):
		h.metrics.Registrations.WithLabelValues(metrics.OutcomeRejectedUpload).Inc()
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	default:
		h.metrics.Registrations.WithLabelValues(metrics.OutcomeFailed).Inc()
		h.log.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed: " + err.Error()})
	}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// ---------- Admin ----------

// ListRegistrations returns every registration newest first. The optional
// q and category parameters narrow the set with the admin search rules.
func (h *Handler) ListRegistrations(c *gin.Context) {
	q := registration.Query{Term: c.Query("q"), Category: c.Query("category")}
	records, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		h.log.Error("list registrations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching registrations: " + err.Error()})
		return
	}
	views := make([]registrationView, 0, len(records))
	for _, r := range records {
		views = append(views, h.view(r))
	}
	c.JSON(http.StatusOK, views)
}

// ExportExcel sends the workbook of all registrations. The workbook is
// complete before the first byte goes out.
func (h *Handler) ExportExcel(c *gin.Context) {
	records, err := h.svc.List(c.Request.Context(), registration.Query{})
	if err != nil {
		h.exportFailed(c, "excel", err)
		return
	}
	var buf bytes.Buffer
	if _, err := export.WriteExcel(&buf, records); err != nil {
		h.exportFailed(c, "excel", err)
		return
	}
	h.metrics.Exports.WithLabelValues("excel", "ok").Inc()
	c.Header("Content-Disposition", "attachment; filename="+export.ExcelFilename)
	c.Data(http.StatusOK, export.ExcelContentType, buf.Bytes())
}

// DownloadPhotos streams a zip of every photo still on disk.
func (h *Handler) DownloadPhotos(c *gin.Context) {
	records, err := h.svc.List(c.Request.Context(), registration.Query{})
	if err != nil {
		h.exportFailed(c, "photos", err)
		return
	}

	c.Header("Content-Type", export.ArchiveContentType)
	c.Header("Content-Disposition", "attachment; filename="+export.ArchiveFilename)
	c.Status(http.StatusOK)

	stats, err := export.WriteArchive(c.Writer, records, h.photos)
	h.metrics.ArchiveEntries.WithLabelValues("added").Add(float64(stats.Added))
	h.metrics.ArchiveEntries.WithLabelValues("skipped").Add(float64(stats.Skipped))
	if err != nil {
		// headers are gone; the unfinalized zip is what the client sees
		h.metrics.Exports.WithLabelValues("photos", "failed").Inc()
		h.log.Error("photo archive aborted", zap.Error(err), zap.Int("added", stats.Added))
		_ = c.Error(err)
		c.Abort()
		return
	}
	h.metrics.Exports.WithLabelValues("photos", "ok").Inc()
}

func (h *Handler) exportFailed(c *gin.Context, kind string, err error) {
	h.metrics.Exports.WithLabelValues(kind, "failed").Inc()
	h.log.Error("export failed", zap.String("kind", kind), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": kind + " export failed: " + err.Error()})
}

// AdminToken exchanges the admin password for a bearer token.
func (h *Handler) AdminToken(c *gin.Context) {
	if h.admin.Password == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "admin authentication is not enabled"})
		return
	}
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !auth.PasswordMatches(h.admin.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tok, err := auth.Issue(h.admin.Issuer, h.admin.SigningKey, h.admin.TTL)
	if err != nil {
		h.log.Error("issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok.AccessToken, "expires_at": tok.ExpiresAt.Unix()})
}
