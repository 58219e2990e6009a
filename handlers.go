package main

import (
	"fmt"
	"littlesite/internal/clmiddleware"
	handlers_cycling "littlesite/internal/handlers/cycling"
	"littlesite/internal/models/clauth"
	"littlesite/internal/models/clsite"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const postsPerPage = 10

type LoginRequest struct {
	Username      string `json:"username" form:"username" binding:"required"`
	Password      string `json:"password" form:"password" binding:"required"`
	CaptchaID     string `json:"captcha_id" form:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer" form:"captcha_answer"`
}

// pageData rassemble les variables communes à tous les templates
func pageData(c *gin.Context, title string, current string) gin.H {
	site := clsite.GetInstance()
	conf := site.Configuration

	return gin.H{
		"title":           title,
		"siteName":        conf.Site.Name,
		"description":     conf.Site.Description,
		"language":        conf.Site.Language,
		"isAuthenticated": clauth.Current(c) != nil,
		"currentYear":     time.Now().Year(),
		"theme":           site.ThemeCSS,
		"version":         site.Version,
		"BuildID":         site.BuildID,
		"menu":            GenerateMenu(conf.Site.Menu, current),
		"rsslink":         site.LinkRSS,
		"renderTime":      clmiddleware.GetRenderTime(c),
	}
}

func merge(data gin.H, extra gin.H) gin.H {
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.GetHeader("Content-Type"), "application/json")
}

// ============= HANDLERS PUBLICS =============

func indexHandler(c *gin.Context) {
	site := clsite.GetInstance()

	c.HTML(http.StatusOK, "index", merge(pageData(c, site.Configuration.Site.Name, "/"), gin.H{
		"ogType":      "website",
		"recentPosts": site.Posts.Recent(3),
	}))
}

func aboutHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "about", pageData(c, "À propos", "/about"))
}

func hardwareHandler(c *gin.Context) {
	site := clsite.GetInstance()
	c.HTML(http.StatusOK, "hardware", merge(pageData(c, "Matériel", "/hardware"), gin.H{
		"hardware": site.Configuration.Site.Hardware,
	}))
}

func blogHandler(c *gin.Context) {
	site := clsite.GetInstance()
	category := strings.TrimSpace(c.Query("category"))

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	total := site.Posts.Count(category)
	totalPages := max((total+postsPerPage-1)/postsPerPage, 1)

	c.HTML(http.StatusOK, "blog", merge(pageData(c, "Blog", "/blog"), gin.H{
		"posts":      site.Posts.Page(page, postsPerPage, category),
		"categories": site.Posts.Categories(),
		"category":   category,
		"page":       page,
		"totalPages": totalPages,
		"hasPrev":    page > 1,
		"hasNext":    page < totalPages,
		"prevPage":   page - 1,
		"nextPage":   page + 1,
	}))
}

func renderPost(c *gin.Context, post any, title string) {
	c.HTML(http.StatusOK, "post", merge(pageData(c, title, "/blog"), gin.H{
		"post":    post,
		"ogTitle": title,
		"ogType":  "article",
	}))
}

func postHandler(c *gin.Context) {
	post, ok := clsite.GetInstance().Posts.BySlug(c.Param("slug"))
	if !ok {
		pageNotFound(c, "Article non trouvé")
		return
	}
	renderPost(c, post, post.Title)
}

func postByIDHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		pageNotFound(c, "Page non trouvée")
		return
	}

	post, ok := clsite.GetInstance().Posts.ByID(uint(id))
	if !ok {
		pageNotFound(c, "Article non trouvé")
		return
	}
	renderPost(c, post, post.Title)
}

func bikingHandler(cycling *handlers_cycling.CyclingHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "biking", merge(pageData(c, "Vélo", "/biking"), gin.H{
			"cycling": cycling.Load(c),
		}))
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func pageNotFound(c *gin.Context, title string) {
	c.HTML(http.StatusNotFound, "404_not_found", merge(pageData(c, title, ""), gin.H{
		"description": "La page que vous recherchez n'existe pas.",
	}))
}

// ============= HANDLERS D'AUTHENTIFICATION =============

func loginPageHandler(c *gin.Context) {
	if clauth.Current(c) != nil {
		c.Redirect(http.StatusFound, "/admin")
		return
	}

	c.HTML(http.StatusOK, "admin_login", merge(pageData(c, "Connexion Admin", ""), gin.H{
		"error": c.Query("error") != "",
	}))
}

// loginFailed répond en JSON ou renvoie sur le formulaire avec l'indicateur d'erreur
func loginFailed(c *gin.Context, status int, msg string) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.Redirect(http.StatusFound, "/admin/login?error=1")
}

func loginHandler(c *gin.Context) {
	site := clsite.GetInstance()

	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		loginFailed(c, http.StatusBadRequest, "Données invalides")
		return
	}

	if err := site.Captcha.Verify(req.CaptchaID, req.CaptchaAnswer); err != nil {
		log.Warn().Str("ip", c.ClientIP()).Err(err).Msg("Captcha refusé")
		loginFailed(c, http.StatusBadRequest, err.Error())
		return
	}

	principal, ok := site.Auth.Validate(req.Username, req.Password)
	if !ok {
		log.Warn().Str("user", req.Username).Str("ip", c.ClientIP()).Msg("Tentative de connexion échouée")
		loginFailed(c, http.StatusUnauthorized, "Identifiants incorrects")
		return
	}

	if err := clauth.Login(c, principal); err != nil {
		log.Error().Err(err).Msg("Erreur session")
		loginFailed(c, http.StatusInternalServerError, "Erreur session")
		return
	}
	log.Info().Str("user", principal.Username).Str("ip", c.ClientIP()).Msg("Connexion réussie")

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{
			"message":  "Connexion réussie",
			"redirect": "/admin",
		})
		return
	}
	c.Redirect(http.StatusFound, "/admin")
}

func logoutHandler(c *gin.Context) {
	if err := clauth.Logout(c); err != nil {
		log.Error().Err(err).Msg("Erreur session")
	}
	c.Redirect(http.StatusFound, "/")
}

// ============= HANDLERS D'ADMINISTRATION =============

func adminHandler(c *gin.Context) {
	site := clsite.GetInstance()

	c.HTML(http.StatusOK, "admin_traffic", merge(pageData(c, "Trafic", ""), gin.H{
		"username":     clauth.Current(c).Username,
		"totalPosts":   site.Posts.Count(""),
		"analytics":    site.Analytics != nil,
		"cyclingCache": site.Cycling.CacheStatus(),
		"memories":     getMemUsage(),
	}))
}

func cacheClearHandler(cycling *handlers_cycling.CyclingHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		clsite.GetInstance().Posts.Invalidate()
		cycling.ClearCache(c)
	}
}

func getMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("Statistiques mémoire: allouée = %v Mo, total allouée = %d Mo, système = %v Mo, nombre de GC = %v", m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024, m.NumGC)
}
