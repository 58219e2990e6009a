package clmiddleware

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookie = "site_session"
	sessionMaxAge = 24 * 60 * 60
	sessionKey    = "site_session_id"
)

// ClientIP : X-Forwarded-For, puis X-Real-IP, puis l'adresse de la connexion
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		if host != "" {
			return host
		}
	}

	return "unknown"
}

// SessionID lit le cookie de session ou en crée un nouveau.
// Le cookie doit être posé avant c.Next(), les en-têtes partent avec le premier octet du corps.
func SessionID(c *gin.Context, ip, userAgent string) string {
	if id := c.GetString(sessionKey); id != "" {
		return id
	}

	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		c.Set(sessionKey, id)
		return id
	}

	id := newSessionToken(ip, userAgent)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, sessionMaxAge, "/", "", true, true)
	c.Set(sessionKey, id)
	return id
}

// le jeton n'a rien de secret, md5 suffit
func newSessionToken(ip, userAgent string) string {
	raw := fmt.Sprintf("%s-%s-%d-%s", ip, userAgent, time.Now().UnixNano(), uuid.NewString())
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
