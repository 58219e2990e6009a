package main

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io/fs"
	"littlesite/internal/clmiddleware"
	handlers_analytics "littlesite/internal/handlers/analytics"
	handlers_cycling "littlesite/internal/handlers/cycling"
	handlers_images "littlesite/internal/handlers/images"
	handlers_rss "littlesite/internal/handlers/rss"
	"littlesite/internal/models/clauth"
	"littlesite/internal/models/clconfig"
	"littlesite/internal/models/cllog"
	"littlesite/internal/models/clposts"
	"littlesite/internal/models/clsite"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	htmlmin "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

const VERSION string = "1.0.0"

var BuildID string

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed ressources/css
//go:embed ressources/js
var staticFS embed.FS

func safeCSS(css string) template.CSS {
	return template.CSS(css)
}

func jsonify(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return template.JS("[]")
	}
	return template.JS(b)
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func getTemplates(production bool) *template.Template {
	m := minify.New()

	if production {
		m.AddFunc("text/html", htmlmin.Minify)
	}

	tmpl := template.New("").Funcs(template.FuncMap{
		"safeCSS":    safeCSS,
		"jsonify":    jsonify,
		"formatDate": formatDate,
	})

	// Lire tous les fichiers HTML
	fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".html" {
			return err
		}

		content, _ := fs.ReadFile(templatesFS, path)
		minified, err := m.Bytes("text/html", content)
		if err != nil {
			minified = content
		}

		template.Must(tmpl.New(path).Parse(string(minified)))
		return nil
	})

	return tmpl
}

// ServeMinifiedStatic sert les css et js embarqués, minifiés
func ServeMinifiedStatic(m *minify.M) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Request.URL.Path, "/files/")
		content, err := fs.ReadFile(staticFS, "ressources/"+path)
		if err != nil {
			pageNotFound(c, "Fichier non trouvé")
			return
		}

		var contentType string
		switch filepath.Ext(path) {
		case ".css":
			contentType = "text/css"
		case ".js":
			contentType = "application/javascript"
		default:
			c.Data(http.StatusOK, "application/octet-stream", content)
			return
		}

		minified, err := m.Bytes(contentType, content)
		if err != nil {
			minified = content
		}

		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Header("ETag", generateETag(minified))
		c.Data(http.StatusOK, contentType, minified)
	}
}

// Fonction helper pour générer un ETag
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf(`"%x"`, hash[:16])
}

// GenerateMenu construit la barre de navigation, l'entrée courante est marquée active
func GenerateMenu(items []clconfig.MenuItem, current string) template.HTML {
	var b strings.Builder
	for _, item := range items {
		link := item.Link
		if link == "" {
			link = "/" + clposts.Slugify(item.Key)
		}
		active := ""
		if link == current {
			active = " active"
		}
		img := ""
		if item.Img != "" {
			img = fmt.Sprintf("<img src=\"%s\" class=\"icon\" alt=\"\"> ", template.HTMLEscapeString(item.Img))
		}
		fmt.Fprintf(&b, "<a href=\"%s\" class=\"nav-link%s\">%s%s</a>\n",
			template.HTMLEscapeString(link), active, img, template.HTMLEscapeString(item.Value))
	}
	return template.HTML(b.String())
}

func newServer(site *clsite.Site) *gin.Engine {
	conf := site.Configuration
	if conf.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	if conf.TrustedProxies != nil {
		if err := r.SetTrustedProxies(conf.TrustedProxies); err != nil {
			log.Warn().Err(err).Msg("Trusted proxies invalides")
		}
	}
	if conf.TrustedPlatform != "" {
		switch conf.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = conf.TrustedPlatform
		}
	}

	// parser les templates
	r.SetHTMLTemplate(getTemplates(conf.Production))

	var traffic *clmiddleware.Traffic
	if site.Analytics != nil {
		traffic = clmiddleware.NewTraffic(site.Analytics, conf.Analytics.Exclude, conf.Analytics.Async)
	}
	clmiddleware.InitMiddleware(r, conf.Production, traffic)

	setRoutes(r, site)
	return r
}

func setRoutes(r *gin.Engine, site *clsite.Site) {
	conf := site.Configuration

	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)

	cycling := handlers_cycling.NewCyclingHandler(site.Cycling)
	analytics := handlers_analytics.NewAnalyticsHandler(site.Analytics)
	thumbs := handlers_images.NewThumbHandler(conf.StaticPath)

	//default
	r.NoRoute(func(c *gin.Context) {
		pageNotFound(c, "Page non trouvée")
	})

	// Route statiques
	if conf.StaticPath != "" {
		r.Static("/static", conf.StaticPath)
	}
	r.GET("/files/css/:name", ServeMinifiedStatic(m))
	r.GET("/files/js/:name", ServeMinifiedStatic(m))
	r.GET("/files/captcha", site.Captcha.Handler)
	r.GET("/images/thumb/*path", thumbs.Serve)

	// Routes publiques
	r.GET("/", indexHandler)
	r.GET("/about", aboutHandler)
	r.GET("/hardware", hardwareHandler)
	r.GET("/blog", blogHandler)
	r.GET("/blog/:slug", postHandler)
	r.GET("/blog/id/:id", postByIDHandler)
	r.GET("/biking", bikingHandler(cycling))
	r.GET("/health", healthHandler)

	// API publiques
	api := r.Group("/api", clmiddleware.CORS)
	{
		api.GET("/cycling-stats", cycling.GetStats)
		api.OPTIONS("/cycling-stats", func(c *gin.Context) {})
	}

	// Flux
	r.GET("/rss.xml", handlers_rss.RssHandler)
	r.GET("/rss.xml/:category", handlers_rss.RssHandler)
	r.GET("/sitemap.xml", handlers_rss.SitemapHandler)

	// Routes d'authentification
	r.GET("/admin/login", loginPageHandler)
	r.POST("/admin/login", clmiddleware.NewLimiter(5, time.Minute), loginHandler)
	r.GET("/admin/logout", logoutHandler)

	// Routes d'administration protégées
	admin := r.Group("/admin", clauth.Required())
	{
		admin.GET("", adminHandler)
		admin.GET("/traffic/api", analytics.GetTraffic)
		admin.POST("/cache/clear", cacheClearHandler(cycling))
	}
	r.GET("/_live/traffic", clauth.Required(), analytics.GetRealtimeStats)
}

// startServer bloque jusqu'à SIGINT ou SIGTERM puis arrête proprement le serveur
func startServer(r *gin.Engine, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Website démarré sur http://%s", addr)
		log.Info().Msgf("Admin: http://%s/admin/login", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Arrêt du serveur")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseCommandLineArgs() (configFile string, shouldCreateExample bool, versionDisplay bool, err error) {
	var config = flag.String("config", "", "Fichier de configuration YAML")
	var example = flag.Bool("example", false, "Créer un fichier de configuration exemple")
	var version = flag.Bool("version", false, "version du produit")
	flag.Parse()

	if *version {
		return "", false, true, nil
	}

	if *example {
		return *config, true, false, nil
	}

	if *config == "" {
		return "", false, false, fmt.Errorf("fichier de configuration requis")
	}

	return *config, false, false, nil
}

func initConfiguration() *clconfig.Config {
	configFile, shouldCreateExample, versionDisplay, err := parseCommandLineArgs()
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  littlesite -config littlesite.yaml")
		fmt.Println("  littlesite -example  (pour créer un fichier exemple)")
		fmt.Println("  littlesite -version  (affiche la version)")
		os.Exit(1)
	}

	if versionDisplay {
		fmt.Println(VERSION)
		os.Exit(0)
	}

	clconfig.CreateExample(shouldCreateExample, configFile)

	conf, err := clconfig.LoadAndPrepare(configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	return conf
}

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	conf := initConfiguration()
	if err := cllog.InitLogger(conf.Logger, conf.Production); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	clconfig.DisplayConfiguration(conf, VERSION)

	site, err := clsite.Init(conf, VERSION, BuildID)
	if err != nil {
		log.Fatal().Err(err).Msg("Initialisation impossible")
	}
	defer site.Close()

	if err := startServer(newServer(site), conf.Listen.Website); err != nil {
		log.Error().Err(err).Msg("Serveur arrêté")
	}
}
