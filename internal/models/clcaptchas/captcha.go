package clcaptchas

import (
	"errors"
	"fmt"
	"littlesite/internal/models/clredis"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissing = errors.New("CAPTCHA manquant")
	ErrWrong   = errors.New("CAPTCHA incorrect")
)

const (
	memCapacity = 1024
	expiration  = 5 * time.Minute
)

// Challenge est la réponse JSON de /files/captcha
type Challenge struct {
	ID     string `json:"captcha_id"`
	Image  string `json:"image"`
	Answer string `json:"answer,omitempty"`
}

// Guard protège le formulaire de connexion admin par un calcul à résoudre.
// Chaque Guard a son propre store, deux sites dans un même processus ne
// partagent pas leurs défis.
type Guard struct {
	captcha    *base64Captcha.Captcha
	production bool
}

func New(client *redis.Client, production bool) *Guard {
	store := base64Captcha.NewMemoryStore(memCapacity, expiration)
	if client != nil {
		store = clredis.NewCaptchaStore(client)
	}
	driver := base64Captcha.NewDriverMath(80, 240, 6, base64Captcha.OptionShowHollowLine, nil, nil, nil)
	return &Guard{
		captcha:    base64Captcha.NewCaptcha(driver, store),
		production: production,
	}
}

// Generate crée un défi, la réponse n'est jointe qu'en développement
func (g *Guard) Generate() (Challenge, error) {
	id, image, answer, err := g.captcha.Generate()
	if err != nil {
		return Challenge{}, fmt.Errorf("génération du captcha: %w", err)
	}
	ch := Challenge{ID: id, Image: image}
	if !g.production {
		log.Debug().Str("captcha_id", id).Str("answer", answer).Msg("Captcha généré")
		ch.Answer = answer
	}
	return ch, nil
}

// Verify consomme le défi, un second essai avec le même id échoue toujours
func (g *Guard) Verify(id, answer string) error {
	id, answer = strings.TrimSpace(id), strings.TrimSpace(answer)
	if id == "" || answer == "" {
		return ErrMissing
	}
	if !g.captcha.Verify(id, answer, true) {
		return ErrWrong
	}
	return nil
}

func (g *Guard) Handler(c *gin.Context) {
	ch, err := g.Generate()
	if err != nil {
		log.Error().Err(err).Msg("captcha")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur génération CAPTCHA"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, ch)
}
