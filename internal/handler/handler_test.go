package handler_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"registrar/internal/export"
	"registrar/internal/handler"
	"registrar/internal/metrics"
	"registrar/internal/photo"
	"registrar/internal/registration"
	"registrar/internal/store"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00"), make([]byte, 64)...)

type testServer struct {
	router  *gin.Engine
	photos  *photo.Store
	store   store.Store
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, admin handler.Admin, submit ...gin.HandlerFunc) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	root := t.TempDir()
	st, err := store.Open(ctx, store.Options{
		Backend: store.BackendSQLite,
		DSN:     store.SQLiteDSN(filepath.Join(root, "registrations.db")),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Init(ctx))

	public := filepath.Join(root, "public")
	require.NoError(t, os.MkdirAll(public, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(public, "index.html"), []byte("<h1>form</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(public, "admin.html"), []byte("<h1>admin</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(public, "app.js"), []byte("console.log(1)"), 0o644))

	photos := photo.NewStore(filepath.Join(root, "uploads"), photo.DefaultMaxBytes)
	m := metrics.New(prometheus.NewRegistry())
	svc := registration.NewService(st, photos, nil)
	h := handler.New(svc, photos, st, m, nil, admin, public)

	r := gin.New()
	h.Routes(r, submit...)
	return &testServer{router: r, photos: photos, store: st, metrics: m}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type filePart struct {
	name        string
	contentType string
	content     []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="photo"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/register", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func studentForm() map[string]string {
	return map[string]string{
		"firstName":   "Ann",
		"lastName":    "Lee",
		"mobile":      "9876543210",
		"email":       "ann@x.com",
		"dob":         "1999-03-07",
		"address":     "12 Park Street",
		"whoareyou":   "student",
		"degree":      "BSc",
		"institution": "City College",
		"id":          "forged",
	}
}

func png(name string) filePart { return filePart{name: name, contentType: "image/png", content: pngBytes} }

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRegister_Created(t *testing.T) {
	s := newTestServer(t, handler.Admin{})

	w := s.do(multipartRequest(t, studentForm(), png("ann.png")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[struct {
		Message string `json:"message"`
		Data    struct {
			ID        string  `json:"id"`
			FirstName string  `json:"first_name"`
			Category  string  `json:"category"`
			Company   *string `json:"company"`
			Photo     string  `json:"photo"`
			PhotoURL  string  `json:"photo_url"`
		} `json:"data"`
	}](t, w)
	assert.Equal(t, "Registration successful", resp.Message)
	assert.NotEqual(t, "forged", resp.Data.ID)
	assert.Equal(t, "Ann", resp.Data.FirstName)
	assert.Equal(t, "student", resp.Data.Category)
	assert.Nil(t, resp.Data.Company)
	assert.Equal(t, photo.URL(resp.Data.Photo), resp.Data.PhotoURL)

	// the stored file is served back
	served := s.do(httptest.NewRequest(http.MethodGet, resp.Data.PhotoURL, nil))
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, pngBytes, served.Body.Bytes())

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeCreated)))
}

func TestRegister_ValidationErrors(t *testing.T) {
	s := newTestServer(t, handler.Admin{})
	form := studentForm()
	delete(form, "institution")
	form["email"] = "ann@"

	w := s.do(multipartRequest(t, form))
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, w)
	assert.Equal(t, "Please upload a photo", resp.Fields["photo"])
	assert.Equal(t, "This field is required", resp.Fields["institution"])
	assert.Equal(t, "Please enter a valid email address", resp.Fields["email"])

	all, err := s.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRegister_RejectsNonImage(t *testing.T) {
	s := newTestServer(t, handler.Admin{})

	w := s.do(multipartRequest(t, studentForm(), filePart{name: "cv.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4")}))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRegister_RejectsOversizedPhoto(t *testing.T) {
	s := newTestServer(t, handler.Admin{})
	big := append(append([]byte{}, pngBytes...), make([]byte, 6<<20)...)

	w := s.do(multipartRequest(t, studentForm(), filePart{name: "big.png", contentType: "image/png", content: big}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	entries, _ := os.ReadDir(s.photos.Dir())
	assert.Empty(t, entries)
}

func TestRegister_RejectsSeveralPhotos(t *testing.T) {
	s := newTestServer(t, handler.Admin{})

	w := s.do(multipartRequest(t, studentForm(), png("a.png"), png("b.png")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_RequiresMultipart(t *testing.T) {
	s := newTestServer(t, handler.Admin{})
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{"first_name":"Ann"}`))
	req.Header.Set("Content-Type", "application/json")

	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
}

func TestRegister_SubmitMiddlewareRuns(t *testing.T) {
	s := newTestServer(t, handler.Admin{}, func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTooManyRequests)
	})

	w := s.do(multipartRequest(t, studentForm(), png("ann.png")))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestListRegistrations(t *testing.T) {
	s := newTestServer(t, handler.Admin{})

	empty := s.do(httptest.NewRequest(http.MethodGet, "/api/registrations", nil))
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `[]`, empty.Body.String())

	require.Equal(t, http.StatusCreated, s.do(multipartRequest(t, studentForm(), png("ann.png"))).Code)
	bob := map[string]string{
		"first_name": "Bob", "last_name": "Roy", "mobile": "9123456780", "email": "bob@y.com",
		"dob": "1988-11-30", "address": "4 Mill Lane", "category": "business",
		"bus_degree": "MBA", "business_type": "Retail", "business_name": "X",
	}
	require.Equal(t, http.StatusCreated, s.do(multipartRequest(t, bob, png("bob.png"))).Code)

	type view struct {
		FirstName string `json:"first_name"`
		Photo     string `json:"photo"`
		PhotoURL  string `json:"photo_url"`
	}

	all := decode[[]view](t, s.do(httptest.NewRequest(http.MethodGet, "/api/registrations", nil)))
	require.Len(t, all, 2)

	lee := decode[[]view](t, s.do(httptest.NewRequest(http.MethodGet, "/api/registrations?q=LEE", nil)))
	require.Len(t, lee, 1)
	assert.Equal(t, "Ann", lee[0].FirstName)

	biz := decode[[]view](t, s.do(httptest.NewRequest(http.MethodGet, "/api/registrations?category=business", nil)))
	require.Len(t, biz, 1)
	assert.Equal(t, "Bob", biz[0].FirstName)

	// a photo deleted out of band falls back to the placeholder
	require.NoError(t, s.photos.Remove(biz[0].Photo))
	biz = decode[[]view](t, s.do(httptest.NewRequest(http.MethodGet, "/api/registrations?category=business", nil)))
	assert.Equal(t, handler.PlaceholderPhotoURL, biz[0].PhotoURL)
}

func TestExportExcel(t *testing.T) {
	s := newTestServer(t, handler.Admin{})
	require.Equal(t, http.StatusCreated, s.do(multipartRequest(t, studentForm(), png("ann.png"))).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/export-excel", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ExcelContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=registrations.xlsx", w.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Registrations")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Degree: BSc, Institution: City College", rows[1][8])
}

func TestDownloadPhotos(t *testing.T) {
	s := newTestServer(t, handler.Admin{})
	require.Equal(t, http.StatusCreated, s.do(multipartRequest(t, studentForm(), png("ann.png"))).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/download-photos", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=registration-photos.zip", w.Header().Get("Content-Disposition"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Regexp(t, `^Ann-Lee-\d+-\d+-ann\.png$`, zr.File[0].Name)
}

func TestAdminToken_Flow(t *testing.T) {
	s := newTestServer(t, handler.Admin{
		Password:   "s3cret",
		Issuer:     "registrar",
		SigningKey: "test-key",
		TTL:        time.Hour,
	})

	denied := s.do(httptest.NewRequest(http.MethodGet, "/api/registrations", nil))
	assert.Equal(t, http.StatusUnauthorized, denied.Code)

	bad := httptest.NewRequest(http.MethodPost, "/api/admin/token", strings.NewReader(`{"password":"nope"}`))
	bad.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnauthorized, s.do(bad).Code)

	good := httptest.NewRequest(http.MethodPost, "/api/admin/token", strings.NewReader(`{"password":"s3cret"}`))
	good.Header.Set("Content-Type", "application/json")
	w := s.do(good)
	require.Equal(t, http.StatusOK, w.Code)
	tok := decode[struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}](t, w)
	require.NotEmpty(t, tok.AccessToken)
	assert.Greater(t, tok.ExpiresAt, time.Now().Unix())

	req := httptest.NewRequest(http.MethodGet, "/api/registrations", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	assert.Equal(t, http.StatusOK, s.do(req).Code)

	// registration stays public
	assert.Equal(t, http.StatusCreated, s.do(multipartRequest(t, studentForm(), png("ann.png"))).Code)
}

func TestAdminToken_DisabledWithoutPassword(t *testing.T) {
	s := newTestServer(t, handler.Admin{})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/token", strings.NewReader(`{"password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusNotFound, s.do(req).Code)
}

func TestShell(t *testing.T) {
	s := newTestServer(t, handler.Admin{})

	tests := []struct {
		method, path string
		code         int
		body         string
	}{
		{http.MethodGet, "/", http.StatusOK, "<h1>form</h1>"},
		{http.MethodGet, "/some/client/route", http.StatusOK, "<h1>form</h1>"},
		{http.MethodGet, "/app.js", http.StatusOK, "console.log(1)"},
		{http.MethodGet, "/admin", http.StatusOK, "<h1>admin</h1>"},
		{http.MethodGet, "/api/unknown", http.StatusNotFound, `"not found"`},
		{http.MethodGet, "/uploads/missing.png", http.StatusNotFound, ""},
		{http.MethodPost, "/nowhere", http.StatusNotFound, `"not found"`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := s.do(httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, handler.Admin{})
	w := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":true}`, w.Body.String())
}
