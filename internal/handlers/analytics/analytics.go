package handlers_analytics

import (
	"littlesite/internal/models/clanalytics"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultDays = 30
	maxDays     = 365
	topLimit    = 10
	recentLimit = 50
)

type AnalyticsHandler struct {
	store *clanalytics.Store
}

func NewAnalyticsHandler(store *clanalytics.Store) *AnalyticsHandler {
	return &AnalyticsHandler{
		store: store,
	}
}

// TrafficReport regroupe tout ce qu'affiche la page trafic de l'admin
type TrafficReport struct {
	Days         int                        `json:"days"`
	Stats        *clanalytics.TrafficStats  `json:"stats"`
	TopPages     []clanalytics.PageStat     `json:"top_pages"`
	TopReferrers []clanalytics.ReferrerStat `json:"top_referrers"`
	Daily        []clanalytics.DailyStat    `json:"daily"`
	Recent       []clanalytics.PageView     `json:"recent"`
}

func parseDays(c *gin.Context) int {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultDays)))
	if err != nil || days <= 0 {
		return defaultDays
	}
	return min(days, maxDays)
}

func (ah *AnalyticsHandler) fail(c *gin.Context, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": msg,
	})
}

// GetTraffic retourne le rapport de trafic sur ?days= jours (30 par défaut)
func (ah *AnalyticsHandler) GetTraffic(c *gin.Context) {
	if ah.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics désactivées"})
		return
	}

	ctx := c.Request.Context()
	days := parseDays(c)
	report := TrafficReport{Days: days}

	var err error
	if report.Stats, err = ah.store.Stats(ctx, days); err != nil {
		ah.fail(c, err, "Failed to retrieve analytics")
		return
	}
	if report.TopPages, err = ah.store.TopPages(ctx, days, topLimit); err != nil {
		ah.fail(c, err, "Failed to retrieve top pages")
		return
	}
	if report.TopReferrers, err = ah.store.TopReferrers(ctx, days, topLimit); err != nil {
		ah.fail(c, err, "Failed to retrieve referrers")
		return
	}
	if report.Daily, err = ah.store.DailyTraffic(ctx, days); err != nil {
		ah.fail(c, err, "Failed to retrieve daily traffic")
		return
	}
	if report.Recent, err = ah.store.RecentPageViews(ctx, recentLimit); err != nil {
		ah.fail(c, err, "Failed to retrieve recent views")
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetRealtimeStats retourne les statistiques en temps réel
func (ah *AnalyticsHandler) GetRealtimeStats(c *gin.Context) {
	if ah.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics désactivées"})
		return
	}

	stats, err := ah.store.Realtime(c.Request.Context())
	if err != nil {
		ah.fail(c, err, "Failed to retrieve realtime stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}
