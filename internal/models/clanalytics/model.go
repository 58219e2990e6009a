package clanalytics

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
	"unicode/utf8"
)

// PageView représente une requête HTTP suivie, jamais modifiée après insertion
type PageView struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	IPAddress    string    `gorm:"type:varchar(45);index;not null" json:"ip_address"`
	UserAgent    string    `gorm:"type:text" json:"user_agent"`
	Path         string    `gorm:"type:varchar(255);index;not null" json:"path"`
	Method       string    `gorm:"type:varchar(10)" json:"method"`
	Referrer     string    `gorm:"type:varchar(500)" json:"referrer"`
	Timestamp    time.Time `gorm:"index;not null" json:"timestamp"`
	ResponseTime float64   `json:"response_time"`
	StatusCode   int       `gorm:"index" json:"status_code"`
	Country      string    `gorm:"type:varchar(2);index" json:"country,omitempty"`
	City         string    `gorm:"type:varchar(100)" json:"city,omitempty"`
	SessionID    string    `gorm:"type:varchar(255);index" json:"session_id"`
}

// UniqueVisitor est unique par couple (IP, hash du user-agent)
type UniqueVisitor struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	IPAddress     string    `gorm:"type:varchar(45);not null;uniqueIndex:idx_visitor_lookup,priority:1" json:"ip_address"`
	UserAgentHash string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_visitor_lookup,priority:2" json:"user_agent_hash"`
	FirstVisit    time.Time `json:"first_visit"`
	LastVisit     time.Time `gorm:"index" json:"last_visit"`
	VisitCount    int       `gorm:"default:1" json:"visit_count"`
	Country       string    `gorm:"type:varchar(2)" json:"country,omitempty"`
	City          string    `gorm:"type:varchar(100)" json:"city,omitempty"`
}

func (PageView) TableName() string {
	return "page_views"
}

func (UniqueVisitor) TableName() string {
	return "unique_visitors"
}

// HashUserAgent retourne les 16 premiers caractères hexa du sha256 du user-agent
func HashUserAgent(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])[:16]
}

// Truncate coupe les champs aux tailles des colonnes, mysql refuse sinon
func (pv *PageView) Truncate() {
	pv.IPAddress = truncate(pv.IPAddress, 45)
	pv.Path = truncate(pv.Path, 255)
	pv.Method = truncate(pv.Method, 10)
	pv.Referrer = truncate(pv.Referrer, 500)
	pv.Country = truncate(pv.Country, 2)
	pv.City = truncate(pv.City, 100)
	pv.SessionID = truncate(pv.SessionID, 255)
}

// truncate coupe en octets sans jamais séparer une rune, utf8mb4 rejette sinon la ligne
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// TrafficStats agrège la fenêtre demandée
type TrafficStats struct {
	TotalPageViews  int64   `json:"total_page_views"`
	UniqueVisitors  int64   `json:"unique_visitors"`
	AvgResponseTime float64 `json:"avg_response_time"`
	BounceRate      float64 `json:"bounce_rate"`
	TotalSessions   int64   `json:"total_sessions"`
}

type PageStat struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

type ReferrerStat struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

type DailyStat struct {
	Date      string `json:"date"`
	PageViews int64  `json:"page_views"`
	Sessions  int64  `json:"sessions"`
}

// RealtimeStats correspond aux dernières minutes de trafic
type RealtimeStats struct {
	ActiveSessions int64          `json:"active_sessions"`
	RecentViews    []RecentView   `json:"recent_views"`
	Today          map[string]any `json:"today,omitempty"`
}

// RecentView masque la fin de l'adresse IP
type RecentView struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ip_address"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
}
