package handlers_rss

import (
	"fmt"
	"littlesite/internal/models/climages"
	"littlesite/internal/models/clrss"
	"littlesite/internal/models/clsite"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// pages statiques publiées dans le sitemap
var sitemapPages = []string{"/", "/about", "/blog", "/biking", "/hardware"}

// baseURL prend l'URL configurée, sinon celle de la requête
func baseURL(c *gin.Context) string {
	if configured := clsite.GetInstance().Configuration.Site.BaseURL; configured != "" {
		return clrss.TrimBaseURL(configured)
	}

	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

// enclosure résout une image /static vers le fichier local pour en lire la taille
func enclosure(base string) clrss.EnclosureFunc {
	staticPath := clsite.GetInstance().Configuration.StaticPath
	return func(imageURL string) *clrss.RSSEnclosure {
		if staticPath == "" || !strings.HasPrefix(imageURL, "/static/") {
			return nil
		}
		realpath := strings.Replace(imageURL, "/static", staticPath, 1)
		size, mime, err := climages.Info(realpath)
		if err != nil {
			return nil
		}
		return &clrss.RSSEnclosure{URL: base + imageURL, Length: size, Type: mime}
	}
}

// RssHandler génère le flux RSS des 20 derniers posts, éventuellement d'une catégorie
func RssHandler(c *gin.Context) {
	site := clsite.GetInstance()
	conf := site.Configuration

	posts := site.Posts.All()
	if category := c.Param("category"); category != "" {
		posts = clrss.FilterCategory(posts, category)
	}

	base := baseURL(c)
	rss := clrss.NewFeed(clrss.Meta{
		Title:       conf.Site.Name,
		Description: conf.Site.Description,
		BaseURL:     base,
		Language:    conf.Site.Language,
		Author:      conf.Site.Author,
		Version:     site.Version,
	}, posts, time.Now(), enclosure(base))

	output, err := clrss.Marshal(rss)
	if err != nil {
		log.Error().Err(err).Msg("Erreur génération RSS")
		c.XML(http.StatusInternalServerError, gin.H{"error": "Erreur génération RSS"})
		return
	}

	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", output)
}

func SitemapHandler(c *gin.Context) {
	site := clsite.GetInstance()

	output, err := clrss.Marshal(clrss.NewSitemap(baseURL(c), sitemapPages, site.Posts.All()))
	if err != nil {
		log.Error().Err(err).Msg("Erreur génération sitemap")
		c.XML(http.StatusInternalServerError, gin.H{"error": "Erreur génération sitemap"})
		return
	}

	c.Data(http.StatusOK, "application/xml; charset=utf-8", output)
}
