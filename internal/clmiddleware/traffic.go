package clmiddleware

import (
	"context"
	"littlesite/internal/models/clanalytics"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// préfixes jamais suivis, /static et /files servent les assets, /_live le temps réel
var excludedPrefixes = []string{
	"/health",
	"/static",
	"/files",
	"/_live",
	"/css",
	"/js",
	"/images",
	"/favicon.ico",
}

var excludedExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".svg": {}, ".ico": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".map": {},
}

// Recorder reçoit les pages vues, clanalytics.Store en est l'implémentation
type Recorder interface {
	Record(ctx context.Context, pv clanalytics.PageView)
}

// AsyncRecorder prend en charge lui-même l'enregistrement en arrière-plan
// et peut ainsi attendre les enregistrements en cours à l'arrêt
type AsyncRecorder interface {
	RecordAsync(ctx context.Context, pv clanalytics.PageView)
}

// Traffic enregistre une page vue par requête suivie
type Traffic struct {
	recorder Recorder
	exclude  []string
	async    bool
}

func NewTraffic(recorder Recorder, exclude []string, async bool) *Traffic {
	prefixes := make([]string, 0, len(exclude))
	for _, p := range exclude {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, strings.ToLower(p))
		}
	}
	return &Traffic{
		recorder: recorder,
		exclude:  prefixes,
		async:    async,
	}
}

// IsTrackable applique les exclusions par préfixe et par extension
func IsTrackable(urlPath string, extra ...string) bool {
	lower := strings.ToLower(urlPath)

	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	for _, prefix := range extra {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	if _, ok := excludedExtensions[path.Ext(lower)]; ok {
		return false
	}
	return true
}

func (t *Traffic) IsTrackable(urlPath string) bool {
	return IsTrackable(urlPath, t.exclude...)
}

// Middleware mesure la requête et l'enregistre une fois la réponse produite,
// y compris quand un handler panique
func (t *Traffic) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t.recorder == nil || !t.IsTrackable(c.Request.URL.Path) {
			c.Next()
			return
		}

		ip := ClientIP(c.Request)
		userAgent := c.Request.UserAgent()
		pv := clanalytics.PageView{
			IPAddress: ip,
			UserAgent: userAgent,
			Path:      c.Request.URL.Path,
			Method:    c.Request.Method,
			Referrer:  c.Request.Referer(),
			SessionID: SessionID(c, ip, userAgent),
		}
		start := time.Now()

		defer func() {
			rec := recover()

			pv.Timestamp = time.Now().UTC()
			pv.ResponseTime = float64(time.Since(start).Microseconds()) / 1000
			pv.StatusCode = c.Writer.Status()
			if rec != nil {
				pv.StatusCode = http.StatusInternalServerError
			}
			t.record(c.Request.Context(), pv)

			if rec != nil {
				panic(rec)
			}
		}()

		c.Next()
	}
}

func (t *Traffic) record(ctx context.Context, pv clanalytics.PageView) {
	ctx = context.WithoutCancel(ctx)

	if t.async {
		if ar, ok := t.recorder.(AsyncRecorder); ok {
			ar.RecordAsync(ctx, pv)
			return
		}
		go t.safeRecord(ctx, pv)
		return
	}
	t.safeRecord(ctx, pv)
}

// safeRecord ne laisse jamais une erreur de suivi atteindre la réponse
func (t *Traffic) safeRecord(ctx context.Context, pv clanalytics.PageView) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("error", rec).Str("path", pv.Path).Msg("Traffic tracking panic")
		}
	}()
	t.recorder.Record(ctx, pv)
}
