package handlers_images

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) (*gin.Engine, string) {
	gin.SetMode(gin.TestMode)
	root := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 800, 400))))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "photo.png"), buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "texte.png"), []byte("pas une image"), 0o644))

	r := gin.New()
	r.GET("/images/thumb/*path", NewThumbHandler(root).Serve)
	return r, root
}

func writePNG(t *testing.T, path string, w, h int) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestServeThumbnail(t *testing.T) {
	r, root := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/thumb/images/photo.png?w=200", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	// servi depuis le cache même si le fichier disparaît
	require.NoError(t, os.Remove(filepath.Join(root, "images", "photo.png")))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/thumb/images/photo.png?w=200", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServeThumbnailSnapsWidth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "large.png"), 2000, 1000)

	h := NewThumbHandler(root)
	r := gin.New()
	r.GET("/images/thumb/*path", h.Serve)

	tests := map[string]int{
		"1":    200,
		"200":  200,
		"300":  400,
		"799":  800,
		"5000": 1200,
		"abc":  400,
		"-4":   400,
	}
	for w, want := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/thumb/large.png?w="+w, nil))
		require.Equal(t, http.StatusOK, rec.Code, w)

		img, err := png.Decode(rec.Body)
		require.NoError(t, err, w)
		assert.Equal(t, want, img.Bounds().Dx(), w)
	}

	for i := 1; i <= 300; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/images/thumb/large.png?w=%d", i), nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.Len(t, h.cache, len(widths))
}

func TestServeThumbnailFlatImage(t *testing.T) {
	r, root := setupTestRouter(t)
	writePNG(t, filepath.Join(root, "images", "bande.png"), 1000, 2)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/thumb/images/bande.png?w=1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())
}

func TestServeThumbnailErrors(t *testing.T) {
	r, _ := setupTestRouter(t)

	tests := map[string]int{
		"/images/thumb/images/absent.png":          http.StatusNotFound,
		"/images/thumb/images/texte.png":           http.StatusUnprocessableEntity,
		"/images/thumb/../../etc/passwd":           http.StatusNotFound,
		"/images/thumb/images/%2e%2e/%2e%2e/x.png": http.StatusNotFound,
	}
	for path, want := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestResolve(t *testing.T) {
	h := NewThumbHandler("/srv/static")

	full, ok := h.resolve("/images/a.png")
	assert.True(t, ok)
	assert.Equal(t, "/srv/static/images/a.png", full)

	full, ok = h.resolve("/../../etc/passwd")
	assert.True(t, ok)
	assert.Equal(t, "/srv/static/etc/passwd", full)

	_, ok = NewThumbHandler("").resolve("/a.png")
	assert.False(t, ok)
}
