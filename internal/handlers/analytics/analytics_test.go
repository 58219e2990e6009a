package handlers_analytics

import (
	"context"
	"encoding/json"
	"littlesite/internal/models/clanalytics"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) (*clanalytics.Store, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := clanalytics.NewStore(db, nil, nil)
	require.NoError(t, store.Migrate())
	return store, db
}

func setupTestRouter(store *clanalytics.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := NewAnalyticsHandler(store)
	r.GET("/admin/traffic/api", h.GetTraffic)
	r.GET("/_live/traffic", h.GetRealtimeStats)
	return r
}

func seed(t *testing.T, store *clanalytics.Store) {
	now := time.Now().UTC()
	views := []clanalytics.PageView{
		{IPAddress: "203.0.113.7", UserAgent: "ua", Path: "/", Method: "GET", SessionID: "s1", Timestamp: now.Add(-time.Minute), StatusCode: 200, ResponseTime: 4},
		{IPAddress: "203.0.113.7", UserAgent: "ua", Path: "/blog", Method: "GET", SessionID: "s1", Referrer: "https://news.example", Timestamp: now.Add(-30 * time.Second), StatusCode: 200, ResponseTime: 6},
		{IPAddress: "198.51.100.2", UserAgent: "ua", Path: "/", Method: "GET", SessionID: "s2", Timestamp: now.Add(-48 * time.Hour), StatusCode: 200, ResponseTime: 5},
	}
	for _, pv := range views {
		require.NoError(t, store.Save(context.Background(), pv))
	}
}

func TestGetTraffic(t *testing.T) {
	store, _ := setupTestStore(t)
	seed(t, store)
	r := setupTestRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/traffic/api?days=7", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var report TrafficReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 7, report.Days)
	require.NotNil(t, report.Stats)
	assert.Equal(t, int64(3), report.Stats.TotalPageViews)
	assert.Equal(t, int64(2), report.Stats.UniqueVisitors)
	assert.Equal(t, int64(2), report.Stats.TotalSessions)
	assert.Equal(t, 50.0, report.Stats.BounceRate)
	require.NotEmpty(t, report.TopPages)
	assert.Equal(t, clanalytics.PageStat{Path: "/", Views: 2}, report.TopPages[0])
	assert.Equal(t, []clanalytics.ReferrerStat{{Referrer: "https://news.example", Count: 1}}, report.TopReferrers)
	assert.Len(t, report.Daily, 8)
	assert.Len(t, report.Recent, 3)
	assert.Equal(t, "/blog", report.Recent[0].Path)

	// fenêtre d'un jour : la visite d'avant-hier sort
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/traffic/api?days=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, int64(2), report.Stats.TotalPageViews)
}

func TestParseDays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := map[string]int{
		"":          defaultDays,
		"?days=abc": defaultDays,
		"?days=-3":  defaultDays,
		"?days=14":  14,
		"?days=999": maxDays,
	}
	for query, want := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/admin/traffic/api"+query, nil)
		assert.Equal(t, want, parseDays(c), query)
	}
}

func TestGetRealtimeStats(t *testing.T) {
	store, _ := setupTestStore(t)
	seed(t, store)
	r := setupTestRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_live/traffic", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats clanalytics.RealtimeStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ActiveSessions)
	require.Len(t, stats.RecentViews, 2)
	assert.Equal(t, "203.0.11...", stats.RecentViews[0].IPAddress)
}

func TestStoreErrorsReturn500(t *testing.T) {
	store, db := setupTestStore(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	r := setupTestRouter(store)

	for _, path := range []string{"/admin/traffic/api", "/_live/traffic"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.Contains(t, w.Body.String(), "error", path)
	}
}

func TestDisabledAnalytics(t *testing.T) {
	r := setupTestRouter(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/traffic/api", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
