package handlers_images

import (
	"bytes"
	"errors"
	"littlesite/internal/models/climages"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const defaultWidth = 400

// les largeurs servies, une demande est arrondie à la largeur supérieure.
// Le cache ne dépasse donc jamais len(widths) entrées par image.
var widths = []int{200, 400, 800, 1200}

type thumb struct {
	data     []byte
	mimeType string
}

// ThumbHandler sert des miniatures des images du répertoire statique, gardées en mémoire
type ThumbHandler struct {
	root  string
	mu    sync.RWMutex
	cache map[string]thumb
}

func NewThumbHandler(staticPath string) *ThumbHandler {
	return &ThumbHandler{
		root:  staticPath,
		cache: map[string]thumb{},
	}
}

// resolve refuse tout chemin qui sort du répertoire statique
func (h *ThumbHandler) resolve(name string) (string, bool) {
	if h.root == "" {
		return "", false
	}
	clean := filepath.Clean("/" + strings.TrimPrefix(name, "/"))
	full := filepath.Join(h.root, clean)
	rel, err := filepath.Rel(h.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func parseWidth(c *gin.Context) int {
	width, err := strconv.Atoi(c.DefaultQuery("w", strconv.Itoa(defaultWidth)))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	for _, w := range widths {
		if width <= w {
			return w
		}
	}
	return widths[len(widths)-1]
}

// Serve répond à /images/thumb/*path?w=
func (h *ThumbHandler) Serve(c *gin.Context) {
	full, ok := h.resolve(c.Param("path"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	width := parseWidth(c)
	key := full + "@" + strconv.Itoa(width)

	h.mu.RLock()
	cached, found := h.cache[key]
	h.mu.RUnlock()
	if found {
		h.write(c, cached)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer f.Close()

	var buf bytes.Buffer
	mimeType, err := climages.Thumbnail(f, &buf, width)
	if err != nil {
		if errors.Is(err, climages.ErrUnsupported) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}
		log.Warn().Err(err).Str("path", full).Msg("Miniature impossible")
		c.Status(http.StatusUnprocessableEntity)
		return
	}

	t := thumb{data: buf.Bytes(), mimeType: mimeType}
	h.mu.Lock()
	h.cache[key] = t
	h.mu.Unlock()

	h.write(c, t)
}

func (h *ThumbHandler) write(c *gin.Context, t thumb) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, t.mimeType, t.data)
}
