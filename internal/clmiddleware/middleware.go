package clmiddleware

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// AdminSession est le nom du cookie de session admin
const AdminSession = "littlesite_admin"

// InitMiddleware installe la chaîne commune, traffic peut être nil
func InitMiddleware(r *gin.Engine, production bool, traffic *Traffic) {
	r.Use(Logger())
	r.Use(Recovery())

	// le suivi passe avant gzip pour mesurer la réponse complète
	if traffic != nil {
		r.Use(traffic.Middleware())
	}

	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(NewSession(production, nil))
	r.Use(RenderTime())
}

// CORS ouvre les routes /api en lecture seule
func CORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}

	c.Next()
}

// NewLimiter limite les tentatives de connexion par IP
func NewLimiter(limit int64, period time.Duration) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	instance := limiter.New(memory.NewStore(), rate)
	return ginlimiter.NewMiddleware(instance,
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			log.Warn().Str("ip", c.ClientIP()).Str("path", c.Request.URL.Path).Msg("Trop de tentatives")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Trop de tentatives, réessayez plus tard"})
		}),
	)
}

// NewSession génère une clé aléatoire si secret est vide, les sessions ne survivent pas au redémarrage
func NewSession(production bool, secret []byte) gin.HandlerFunc {
	if len(secret) == 0 {
		secret = generateSecretKey()
	}
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(AdminSession, store)
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		var logEvent *zerolog.Event
		switch {
		case statusCode == http.StatusNotFound:
			logEvent = log.Debug()
		case statusCode >= 500:
			logEvent = log.Error()
		case statusCode >= 400:
			logEvent = log.Warn()
		default:
			logEvent = log.Info()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("ip", ClientIP(c.Request)).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP Request")

		for _, err := range c.Errors {
			log.Error().
				Err(err.Err).
				Str("type", strconv.FormatUint(uint64(err.Type), 10)).
				Msg("Request error")
		}
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Msg("Panic recovered")

				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func RenderTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("requestStart", time.Now())
		c.Next()
	}
}

// GetRenderTime est affiché en pied de page
func GetRenderTime(c *gin.Context) string {
	start, ok := c.Get("requestStart")
	if !ok {
		return ""
	}
	return fmt.Sprintf("Page générée en %s", formatDuration(time.Since(start.(time.Time))))
}

func generateSecretKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatal().Err(err).Msg("Erreur génération clé secrète")
	}
	return key
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
