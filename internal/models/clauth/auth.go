package clauth

import (
	"net/http"
	"strings"

	"github.com/andskur/argon2-hashing"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	RoleAdmin = "Admin"

	keyUser = "username"
	keyRole = "role"
)

// Principal est l'identité stockée dans la session admin
type Principal struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Gate valide l'unique compte administrateur
type Gate struct {
	login string
	hash  []byte
}

func New(login, hash string) *Gate {
	return &Gate{
		login: strings.TrimSpace(login),
		hash:  []byte(hash),
	}
}

func (g *Gate) Configured() bool {
	return g.login != "" && len(g.hash) > 0
}

// Validate compare le login sans tenir compte de la casse et le mot de passe au hash argon2
func (g *Gate) Validate(username, password string) (*Principal, bool) {
	if !g.Configured() || username == "" || password == "" {
		return nil, false
	}
	if !strings.EqualFold(strings.TrimSpace(username), g.login) {
		return nil, false
	}
	if err := argon2.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return nil, false
	}
	return &Principal{Username: g.login, Role: RoleAdmin}, true
}

// Login enregistre le principal dans la session cookie
func Login(c *gin.Context, p *Principal) error {
	session := sessions.Default(c)
	session.Set(keyUser, p.Username)
	session.Set(keyRole, p.Role)
	return session.Save()
}

func Logout(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// Current retourne nil hors session admin
func Current(c *gin.Context) *Principal {
	session := sessions.Default(c)
	username, _ := session.Get(keyUser).(string)
	role, _ := session.Get(keyRole).(string)
	if username == "" || role != RoleAdmin {
		return nil
	}
	return &Principal{Username: username, Role: role}
}

// Required redirige vers /admin/login, ou répond 401 aux appels JSON
func Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Current(c)
		if p == nil {
			if wantsJSON(c) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentification requise"})
			} else {
				c.Redirect(http.StatusFound, "/admin/login")
			}
			c.Abort()
			return
		}
		c.Set("principal", p)
		c.Next()
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.GetHeader("Content-Type"), "application/json") ||
		strings.Contains(c.GetHeader("Accept"), "application/json") ||
		strings.HasPrefix(c.Request.URL.Path, "/_live") ||
		strings.Contains(c.Request.URL.Path, "/api")
}
