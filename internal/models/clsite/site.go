package clsite

import (
	"fmt"
	"html/template"
	"littlesite/internal/models/clanalytics"
	"littlesite/internal/models/clauth"
	"littlesite/internal/models/clcaptchas"
	"littlesite/internal/models/clconfig"
	"littlesite/internal/models/clcycling"
	"littlesite/internal/models/cldatabase"
	"littlesite/internal/models/climages"
	"littlesite/internal/models/clposts"
	"littlesite/internal/models/clredis"
	"littlesite/internal/models/gormzerologger"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	instance *Site
)

// Site regroupe les services partagés par les handlers
type Site struct {
	Configuration *clconfig.Config
	Db            *gorm.DB
	Redis         *redis.Client
	Posts         *clposts.Loader
	Cycling       *clcycling.Service
	Analytics     *clanalytics.Store
	Auth          *clauth.Gate
	Captcha       *clcaptchas.Guard
	ThemeCSS      template.CSS
	LinkRSS       template.HTML
	Version       string
	BuildID       string

	analyticsDb *gorm.DB // base dédiée, nil si les analytics partagent Db
}

func GetInstance() *Site {
	if instance == nil {
		instance = &Site{}
	}
	return instance
}

// SetInstance remplace l'instance globale, utilisé par les tests
func SetInstance(s *Site) {
	instance = s
}

// Init ouvre les bases et construit les services à partir de la configuration
func Init(config *clconfig.Config, version string, buildid string) (*Site, error) {
	site := &Site{
		Configuration: config,
		Version:       version,
		BuildID:       buildid,
	}

	if err := site.initDatabase(); err != nil {
		return nil, err
	}
	if err := site.initAnalytics(); err != nil {
		return nil, err
	}

	site.Redis = clredis.NewClient(config.Database.Redis.Addr, config.Database.Redis.Db)
	site.Captcha = clcaptchas.New(site.Redis, config.Production)
	site.Auth = clauth.New(config.User.Login, config.User.Hash)
	site.Posts = clposts.NewLoader(config.Blog.PostsDir, time.Duration(config.Blog.CacheMinutes)*time.Minute)
	site.Cycling = clcycling.New(config.Cycling, nil)
	site.ThemeCSS = template.CSS(GenerateThemeCSS(config.Site.Theme))
	site.LinkRSS = GenerateDynamicRSS(site.Posts.Categories(), config.Site.Name)

	instance = site
	return site, nil
}

func (s *Site) initDatabase() error {
	conf := s.Configuration
	level := gormzerologger.LevelFor(conf.Logger.Level, conf.Production)

	db, err := cldatabase.Open(conf.Database.Db, conf.Database.Path, conf.Database.Dsn, level)
	if err != nil {
		return err
	}
	s.Db = db
	return nil
}

// initAnalytics utilise la base principale sauf si une base dédiée est configurée
func (s *Site) initAnalytics() error {
	conf := s.Configuration
	if !conf.Analytics.Enabled {
		return nil
	}

	db := s.Db
	if conf.Analytics.Db != "" && (conf.Analytics.Path != "" || conf.Analytics.Dsn != "") {
		level := gormzerologger.LevelFor(conf.Logger.Level, conf.Production)
		dedicated, err := cldatabase.Open(conf.Analytics.Db, conf.Analytics.Path, conf.Analytics.Dsn, level)
		if err != nil {
			return fmt.Errorf("base analytics: %w", err)
		}
		db = dedicated
		s.analyticsDb = dedicated
	}

	redisConf := conf.Analytics.Redis
	if redisConf.Addr == "" {
		redisConf = conf.Database.Redis
	}

	geo, err := clanalytics.OpenGeoIP(conf.Analytics.GeoIP)
	if err != nil {
		return err
	}

	store := clanalytics.NewStore(db, clredis.NewClient(redisConf.Addr, redisConf.Db), geo)
	if err := store.Migrate(); err != nil {
		return err
	}
	if err := store.StartRetention(conf.Analytics.RetentionDays); err != nil {
		return err
	}
	s.Analytics = store
	return nil
}

// Close attend les enregistrements en cours avant de fermer les connexions
func (s *Site) Close() {
	if s.Analytics != nil {
		s.Analytics.Stop()
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
	closeDB(s.analyticsDb)
	closeDB(s.Db)
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("Fermeture base")
		}
	}
}

// GenerateDynamicRSS produit les balises link d'un flux par catégorie
func GenerateDynamicRSS(categories []string, siteName string) template.HTML {
	var b strings.Builder
	for _, category := range categories {
		slug := clposts.Slugify(category)
		if slug == "" {
			continue
		}
		fmt.Fprintf(&b, "    <link rel=\"alternate\" type=\"application/rss+xml\" title=\"%s - %s\" href=\"/rss.xml/%s\"/>\n",
			template.HTMLEscapeString(siteName), template.HTMLEscapeString(category), slug)
	}
	return template.HTML(b.String())
}

// GenerateThemeCSS dérive les variables CSS du thème à partir d'une couleur nommée ou hexa
func GenerateThemeCSS(colorName string) string {
	baseColors := map[string]string{
		"blue":   "#007bff",
		"red":    "#dc3545",
		"green":  "#28a745",
		"yellow": "#ffc107",
		"purple": "#6f42c1",
		"cyan":   "#17a2b8",
		"orange": "#fd7e14",
		"pink":   "#e83e8c",
		"gray":   "#6c757d",
		"grey":   "#6c757d",
		"black":  "#000000",
	}

	baseHex, exists := baseColors[strings.ToLower(colorName)]
	if !exists {
		if strings.HasPrefix(colorName, "#") && len(colorName) == 7 {
			baseHex = colorName
		} else {
			baseHex = "#007bff"
		}
	}

	base := climages.HexToColor(baseHex)
	hover := base.Darken(20)

	return fmt.Sprintf(`:root {
 --primary-color: %s;
 --primary-hover: %s;
 --accent-color: %s;
 --light-color: %s;
 --dark-color: %s;
 --border-color: %s;
 --shadow: 0 2px 10px rgba(%d,%d,%d,0.1);
 --gradient: linear-gradient(135deg, %s 0%%, %s 100%%);
}`,
		base.ToHex(),
		hover.ToHex(),
		base.Lighten(15).ToHex(),
		base.Lighten(80).ToHex(),
		base.Darken(70).ToHex(),
		base.Lighten(60).ToHex(),
		base.R, base.G, base.B,
		base.ToHex(),
		hover.ToHex(),
	)
}
