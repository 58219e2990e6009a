package handlers_cycling

import (
	"littlesite/internal/models/clcycling"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const recentCount = 5

type CyclingHandler struct {
	service *clcycling.Service
}

func NewCyclingHandler(service *clcycling.Service) *CyclingHandler {
	return &CyclingHandler{service: service}
}

// Data regroupe ce qu'affiche la page vélo
type Data struct {
	Available   bool                 `json:"available"`
	YTDStats    clcycling.YTDStats   `json:"ytd_stats"`
	Recent      []clcycling.Activity `json:"recent_activities"`
	LastUpdated string               `json:"last_updated"`
}

// Load ne retourne jamais d'erreur, le service retombe sur le cache ou les valeurs d'exemple
func (h *CyclingHandler) Load(c *gin.Context) Data {
	ctx := c.Request.Context()
	return Data{
		Available:   h.service.IsAvailable(),
		YTDStats:    h.service.YTDStats(ctx),
		Recent:      h.service.RecentActivities(ctx, recentCount),
		LastUpdated: time.Now().Format("January 02, 2006 at 03:04 PM"),
	}
}

// GetStats sert /api/cycling-stats, 503 sans clé API configurée
func (h *CyclingHandler) GetStats(c *gin.Context) {
	if !h.service.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":             "Cycling service not available",
			"ytd_stats":         nil,
			"recent_activities": []clcycling.Activity{},
		})
		return
	}

	c.JSON(http.StatusOK, h.Load(c))
}

// ClearCache vide le cache du service, route admin
func (h *CyclingHandler) ClearCache(c *gin.Context) {
	h.service.ClearCache()
	c.JSON(http.StatusOK, gin.H{"success": true, "cache": h.service.CacheStatus()})
}
