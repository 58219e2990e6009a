package clcycling

import (
	"context"
	"encoding/base64"
	"littlesite/internal/models/clconfig"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activitiesJSON = `[
  {"name": "Col du Galibier", "type": "Ride", "distance": 80467.2, "total_elevation_gain": 1524, "moving_time": 14400, "start_date": "2025-03-08T07:00:00Z"},
  {"name": "", "sport": "VirtualRide", "distance": 16093.4, "elev_gain": 100, "moving_time": 0, "elapsed_time": 1800, "start_date_local": "2025-03-09T18:00:00"},
  {"name": "Footing", "type": "Run", "distance": 10000, "moving_time": 3000, "start_date": "2025-03-09T06:00:00Z"}
]`

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T, handler http.HandlerFunc) (*Service, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	s := New(clconfig.CyclingConfig{
		ApiKey:     "secret",
		AthleteId:  "i42",
		BaseURL:    server.URL + "/",
		CacheHours: 12,
	}, server.Client())
	s.now = func() time.Time { return fixedNow }
	return s, &calls
}

func TestUnavailableServiceUsesSamples(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	s := New(clconfig.CyclingConfig{AthleteId: "i42", BaseURL: server.URL}, nil)
	assert.False(t, s.IsAvailable())

	assert.Equal(t, SampleYTDStats(), s.YTDStats(context.Background()))
	assert.Equal(t, SampleActivities(), s.RecentActivities(context.Background(), 5))
	assert.Len(t, s.RecentActivities(context.Background(), 1), 1)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestYTDStats(t *testing.T) {
	s, calls := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athlete/i42/activities", r.URL.Path)
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("oldest"))
		assert.Equal(t, "2025-03-10", r.URL.Query().Get("newest"))
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("API_KEY:secret"))
		assert.Equal(t, want, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(activitiesJSON))
	})

	stats := s.YTDStats(context.Background())
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 60.0, stats.Distance)
	assert.Equal(t, 5328, stats.Elevation)
	assert.Equal(t, 4.5, stats.Time)
	assert.Equal(t, 13.3, stats.AvgSpeed)

	// servi depuis le cache
	s.YTDStats(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	status := s.CacheStatus()
	require.Contains(t, status, keyYTD)
	assert.True(t, status[keyYTD].Valid)

	s.ClearCache()
	s.YTDStats(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestRecentActivities(t *testing.T) {
	s, _ := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-02-24", r.URL.Query().Get("oldest"))
		w.Write([]byte(activitiesJSON))
	})

	activities := s.RecentActivities(context.Background(), 5)
	require.Len(t, activities, 2)

	assert.Equal(t, "Cycling Activity", activities[0].Name)
	assert.Equal(t, "30m", activities[0].Time)
	assert.Equal(t, "March 9, 2025", activities[0].Date)
	assert.Equal(t, 20.0, activities[0].AvgSpeed)

	assert.Equal(t, Activity{
		Name:      "Col du Galibier",
		Distance:  50.0,
		Elevation: 5000,
		Time:      "4h 0m",
		Date:      "March 8, 2025",
		AvgSpeed:  12.5,
	}, activities[1])

	assert.Len(t, s.RecentActivities(context.Background(), 1), 1)
}

func TestFailureFallsBackToStaleCache(t *testing.T) {
	var fail atomic.Bool
	s, _ := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(activitiesJSON))
	})

	first := s.YTDStats(context.Background())

	fail.Store(true)
	s.now = func() time.Time { return fixedNow.Add(13 * time.Hour) }
	assert.Equal(t, first, s.YTDStats(context.Background()))
	assert.False(t, s.CacheStatus()[keyYTD].Valid)
}

func TestFailureWithoutCacheUsesSamples(t *testing.T) {
	s, _ := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	assert.Equal(t, SampleYTDStats(), s.YTDStats(context.Background()))
	assert.Equal(t, SampleActivities()[:2], s.RecentActivities(context.Background(), 2))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", FormatDuration(0))
	assert.Equal(t, "45m", FormatDuration(45*60))
	assert.Equal(t, "1h 45m", FormatDuration(105*60))
}
