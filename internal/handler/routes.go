package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"registrar/internal/auth"
)

// Routes mounts the API, uploads and HTML shells on r. submit runs in
// front of the registration endpoint only.
func (h *Handler) Routes(r *gin.Engine, submit ...gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/register", append(submit, h.Register)...)
		api.POST("/admin/token", h.AdminToken)

		admin := api.Group("", auth.AdminAuth(h.admin.Password != "", h.admin.SigningKey, h.admin.Issuer))
		admin.GET("/registrations", h.ListRegistrations)
		admin.GET("/export-excel", h.ExportExcel)
		admin.GET("/download-photos", h.DownloadPhotos)
	}

	r.Static("/uploads", h.photos.Dir())
	r.GET("/admin", func(c *gin.Context) {
		c.File(filepath.Join(h.publicDir, "admin.html"))
	})
	r.NoRoute(h.shell)
}

// shell serves a file from the public directory when one matches the path
// and the form page otherwise. Missing API routes and uploads stay 404.
func (h *Handler) shell(c *gin.Context) {
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/uploads/") ||
		(c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	candidate := filepath.Join(h.publicDir, filepath.FromSlash(path.Clean("/"+p)))
	if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
		c.File(candidate)
		return
	}
	c.File(filepath.Join(h.publicDir, "index.html"))
}
