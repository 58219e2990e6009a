package clsite

import (
	"context"
	"littlesite/internal/models/clanalytics"
	"littlesite/internal/models/clconfig"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestTheme(t *testing.T) {
	assert.Equal(t, GenerateThemeCSS(""), GenerateThemeCSS("#007bff"))
	assert.Equal(t, GenerateThemeCSS("blue"), GenerateThemeCSS("#007bff"))
	assert.Equal(t, GenerateThemeCSS("RED"), GenerateThemeCSS("#dc3545"))
	assert.Equal(t, GenerateThemeCSS("#12"), GenerateThemeCSS("blue"))
	assert.Contains(t, GenerateThemeCSS("black"), "--primary-color: #000000;")
}

func TestGenerateDynamicRSS(t *testing.T) {
	links := string(GenerateDynamicRSS([]string{"Vélo Route", "", "<b>"}, "Mon site"))
	assert.Contains(t, links, `href="/rss.xml/vélo-route"`)
	assert.Contains(t, links, `title="Mon site - Vélo Route"`)
	assert.Contains(t, links, `href="/rss.xml/b"`)
	assert.NotContains(t, links, "<b>")
}

func TestInitWithSqlite(t *testing.T) {
	dir := t.TempDir()
	conf := &clconfig.Config{
		Database: clconfig.DatabaseConfig{Db: "sqlite", Path: filepath.Join(dir, "site.db")},
		User:     clconfig.UserConfig{Login: "admin"},
		Logger:   clconfig.LoggerConfig{Level: "error"},
		Site:     clconfig.SiteConfig{Name: "Test", Theme: "green"},
		Blog:     clconfig.BlogConfig{PostsDir: dir, CacheMinutes: 5},
		Analytics: clconfig.AnalyticsConfig{
			Enabled: true,
			Db:      "sqlite",
			Path:    filepath.Join(dir, "analytics.db"),
		},
		Production: true,
	}

	site, err := Init(conf, "1.0.0", "test")
	require.NoError(t, err)

	assert.Same(t, site, GetInstance())
	assert.NotNil(t, site.Analytics)
	assert.NotNil(t, site.Posts)
	assert.NotNil(t, site.Captcha)
	assert.Nil(t, site.Redis)
	assert.False(t, site.Auth.Configured())
	assert.False(t, site.Cycling.IsAvailable())
	assert.Equal(t, 0, site.Posts.Count(""))
	assert.False(t, site.Db.Migrator().HasTable("page_views"))
	require.NotNil(t, site.analyticsDb)
	assert.True(t, site.analyticsDb.Migrator().HasTable("page_views"))

	// Close attend la page vue en cours puis ferme les deux bases
	site.Analytics.RecordAsync(context.Background(), clanalytics.PageView{IPAddress: "192.0.2.1", Path: "/", SessionID: "s"})
	site.Close()

	mainDB, err := site.Db.DB()
	require.NoError(t, err)
	assert.Error(t, mainDB.Ping())
	analyticsDB, err := site.analyticsDb.DB()
	require.NoError(t, err)
	assert.Error(t, analyticsDB.Ping())

	reopened, err := gorm.Open(sqlite.Open(conf.Analytics.Path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	var count int64
	require.NoError(t, reopened.Model(&clanalytics.PageView{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	if sqlDB, err := reopened.DB(); err == nil {
		sqlDB.Close()
	}
}

func TestInitRejectsUnknownDatabase(t *testing.T) {
	_, err := Init(&clconfig.Config{Database: clconfig.DatabaseConfig{Db: "postgres"}}, "", "")
	assert.Error(t, err)
}
