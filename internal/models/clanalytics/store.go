package clanalytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dateLayout = "2006-01-02"

// Store persiste les pages vues et les visiteurs uniques
type Store struct {
	db    *gorm.DB
	redis *redis.Client
	geo   GeoResolver
	cron  *cron.Cron
	now   func() time.Time

	mu      sync.Mutex
	stopped bool
	pending sync.WaitGroup
}

// NewStore accepte un client redis et un résolveur geo nil
func NewStore(db *gorm.DB, redisClient *redis.Client, geo GeoResolver) *Store {
	return &Store{
		db:    db,
		redis: redisClient,
		geo:   geo,
		now:   time.Now,
	}
}

// Migrate crée les tables page_views et unique_visitors
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&PageView{}, &UniqueVisitor{}); err != nil {
		return fmt.Errorf("erreur migration analytics: %w", err)
	}
	return nil
}

// Record enregistre une page vue, une erreur est journalisée puis ignorée
func (s *Store) Record(ctx context.Context, pv PageView) {
	if err := s.Save(ctx, pv); err != nil {
		log.Warn().Err(err).Str("path", pv.Path).Msg("Traffic tracking error")
	}
}

// RecordAsync enregistre en arrière-plan, Stop attend la fin des enregistrements en cours.
// Après Stop la page vue est abandonnée.
func (s *Store) RecordAsync(ctx context.Context, pv PageView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		log.Debug().Str("path", pv.Path).Msg("Store arrêté, page vue ignorée")
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("error", rec).Str("path", pv.Path).Msg("Traffic tracking panic")
			}
		}()
		s.Record(ctx, pv)
	}()
}

// Save insère la page vue et met à jour le visiteur dans une seule transaction
func (s *Store) Save(ctx context.Context, pv PageView) error {
	if pv.Timestamp.IsZero() {
		pv.Timestamp = s.now()
	}
	pv.Timestamp = pv.Timestamp.UTC()

	if s.geo != nil && pv.Country == "" {
		pv.Country, pv.City = s.geo.Lookup(pv.IPAddress)
	}
	pv.Truncate()

	visitor := UniqueVisitor{
		IPAddress:     pv.IPAddress,
		UserAgentHash: HashUserAgent(pv.UserAgent),
		FirstVisit:    pv.Timestamp,
		LastVisit:     pv.Timestamp,
		VisitCount:    1,
		Country:       pv.Country,
		City:          pv.City,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&pv).Error; err != nil {
			return fmt.Errorf("insertion page vue: %w", err)
		}

		// l'upsert évite la course entre deux requêtes du même visiteur
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ip_address"}, {Name: "user_agent_hash"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_visit":  pv.Timestamp,
				"visit_count": gorm.Expr("visit_count + 1"),
			}),
		}).Create(&visitor).Error
		if err != nil {
			return fmt.Errorf("mise à jour visiteur: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.bumpCounters(ctx, pv)
	return nil
}

// bumpCounters alimente les compteurs du jour dans redis
func (s *Store) bumpCounters(ctx context.Context, pv PageView) {
	if s.redis == nil {
		return
	}

	day := pv.Timestamp.Format(dateLayout)
	dailyKey := "analytics:daily:" + day
	sessionsKey := "analytics:sessions:" + day

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, dailyKey, "page_views", 1)
		pipe.SAdd(ctx, sessionsKey, pv.SessionID)
		pipe.Expire(ctx, dailyKey, 48*time.Hour)
		pipe.Expire(ctx, sessionsKey, 48*time.Hour)
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("compteurs redis indisponibles")
	}
}

// since retourne la borne basse d'une fenêtre de days jours
func (s *Store) since(days int) time.Time {
	return s.now().UTC().AddDate(0, 0, -days)
}

// Stats agrège les days derniers jours
func (s *Store) Stats(ctx context.Context, days int) (*TrafficStats, error) {
	since := s.since(days)
	db := s.db.WithContext(ctx)
	stats := &TrafficStats{}

	err := db.Model(&PageView{}).
		Where("timestamp >= ?", since).
		Count(&stats.TotalPageViews).Error
	if err != nil {
		return nil, fmt.Errorf("error counting page views: %w", err)
	}

	err = db.Model(&UniqueVisitor{}).
		Where("last_visit >= ?", since).
		Count(&stats.UniqueVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("error counting unique visitors: %w", err)
	}

	var avg sql.NullFloat64
	err = db.Model(&PageView{}).
		Select("AVG(response_time)").
		Where("timestamp >= ?", since).
		Row().Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("error computing response time: %w", err)
	}
	if avg.Valid {
		stats.AvgResponseTime = round(avg.Float64, 2)
	}

	type sessionViews struct {
		SessionID string
		Views     int64
	}
	var sessions []sessionViews
	err = db.Model(&PageView{}).
		Select("session_id, COUNT(*) as views").
		Where("timestamp >= ?", since).
		Group("session_id").
		Scan(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("error grouping sessions: %w", err)
	}

	var single int64
	for _, sv := range sessions {
		if sv.Views == 1 {
			single++
		}
	}
	stats.TotalSessions = int64(len(sessions))
	if stats.TotalSessions > 0 {
		stats.BounceRate = round(float64(single)/float64(stats.TotalSessions)*100, 1)
	}

	return stats, nil
}

// TopPages retourne les chemins les plus vus, du plus au moins vu
func (s *Store) TopPages(ctx context.Context, days, limit int) ([]PageStat, error) {
	topPages := []PageStat{}
	err := s.db.WithContext(ctx).Model(&PageView{}).
		Select("path, COUNT(*) as views").
		Where("timestamp >= ?", s.since(days)).
		Group("path").
		Order("views DESC, path ASC").
		Limit(limit).
		Scan(&topPages).Error
	if err != nil {
		return nil, fmt.Errorf("error getting top pages: %w", err)
	}
	return topPages, nil
}

// TopReferrers ignore les referrers vides
func (s *Store) TopReferrers(ctx context.Context, days, limit int) ([]ReferrerStat, error) {
	topReferrers := []ReferrerStat{}
	err := s.db.WithContext(ctx).Model(&PageView{}).
		Select("referrer, COUNT(*) as count").
		Where("timestamp >= ? AND referrer IS NOT NULL AND referrer != ''", s.since(days)).
		Group("referrer").
		Order("count DESC, referrer ASC").
		Limit(limit).
		Scan(&topReferrers).Error
	if err != nil {
		return nil, fmt.Errorf("error getting top referrers: %w", err)
	}
	return topReferrers, nil
}

// DailyTraffic démarre à minuit UTC il y a days jours, les jours sans trafic valent zéro
func (s *Store) DailyTraffic(ctx context.Context, days int) ([]DailyStat, error) {
	days = max(days, 0)
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)

	var rows []DailyStat
	err := s.db.WithContext(ctx).Model(&PageView{}).
		Select("DATE(timestamp) as date, COUNT(*) as page_views, COUNT(DISTINCT session_id) as sessions").
		Where("timestamp >= ?", start).
		Group("DATE(timestamp)").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error getting daily stats: %w", err)
	}

	// mysql renvoie parfois une date complète
	byDate := make(map[string]DailyStat, len(rows))
	for _, row := range rows {
		if len(row.Date) > len(dateLayout) {
			row.Date = row.Date[:len(dateLayout)]
		}
		byDate[row.Date] = row
	}

	result := make([]DailyStat, 0, days+1)
	for d := start; !d.After(now); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		stat, ok := byDate[key]
		if !ok {
			stat = DailyStat{Date: key}
		}
		result = append(result, stat)
	}
	return result, nil
}

// RecentPageViews retourne les dernières pages vues, la plus récente en tête
func (s *Store) RecentPageViews(ctx context.Context, limit int) ([]PageView, error) {
	views := []PageView{}
	err := s.db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&views).Error
	if err != nil {
		return nil, fmt.Errorf("error getting recent page views: %w", err)
	}
	return views, nil
}

// Realtime couvre les 5 dernières minutes, les adresses IP sont masquées
func (s *Store) Realtime(ctx context.Context) (*RealtimeStats, error) {
	since := s.now().UTC().Add(-5 * time.Minute)
	db := s.db.WithContext(ctx)
	stats := &RealtimeStats{RecentViews: []RecentView{}}

	err := db.Model(&PageView{}).
		Where("timestamp >= ?", since).
		Distinct("session_id").
		Count(&stats.ActiveSessions).Error
	if err != nil {
		return nil, fmt.Errorf("error counting active sessions: %w", err)
	}

	var views []PageView
	err = db.Where("timestamp >= ?", since).
		Order("timestamp DESC, id DESC").
		Limit(20).
		Find(&views).Error
	if err != nil {
		return nil, fmt.Errorf("error getting realtime views: %w", err)
	}
	for _, v := range views {
		stats.RecentViews = append(stats.RecentViews, RecentView{
			Path:      v.Path,
			Timestamp: v.Timestamp,
			IPAddress: MaskIP(v.IPAddress),
			Country:   v.Country,
			City:      v.City,
		})
	}

	if today, err := s.Today(ctx); err == nil && today != nil {
		stats.Today = today
	}
	return stats, nil
}

// Today lit les compteurs redis du jour, nil sans redis
func (s *Store) Today(ctx context.Context) (map[string]any, error) {
	if s.redis == nil {
		return nil, nil
	}
	day := s.now().UTC().Format(dateLayout)

	pageViews, err := s.redis.HGet(ctx, "analytics:daily:"+day, "page_views").Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	sessions, err := s.redis.SCard(ctx, "analytics:sessions:"+day).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	return map[string]any{
		"today_page_views": pageViews,
		"today_sessions":   sessions,
	}, nil
}

// Purge supprime les pages vues et les visiteurs antérieurs à before
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, int64, error) {
	db := s.db.WithContext(ctx)

	views := db.Where("timestamp < ?", before.UTC()).Delete(&PageView{})
	if views.Error != nil {
		return 0, 0, views.Error
	}
	visitors := db.Where("last_visit < ?", before.UTC()).Delete(&UniqueVisitor{})
	if visitors.Error != nil {
		return views.RowsAffected, 0, visitors.Error
	}
	return views.RowsAffected, visitors.RowsAffected, nil
}

// StartRetention purge chaque nuit ce qui dépasse days jours, rien si days vaut 0
func (s *Store) StartRetention(days int) error {
	if days <= 0 {
		return nil
	}

	c := cron.New()
	// tous les jours à 2h du matin
	_, err := c.AddFunc("0 2 * * *", func() {
		views, visitors, err := s.Purge(context.Background(), s.since(days))
		if err != nil {
			log.Error().Err(err).Msg("Cleanup failed")
			return
		}
		log.Info().Int64("page_views", views).Int64("visitors", visitors).Msg("Cleanup completed")
	})
	if err != nil {
		return fmt.Errorf("cron de rétention: %w", err)
	}

	c.Start()
	s.cron = c
	return nil
}

// Stop attend les enregistrements en cours, arrête la rétention puis ferme geo et redis
func (s *Store) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	s.pending.Wait()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.geo != nil {
		s.geo.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

// MaskIP garde les 8 premiers caractères de l'adresse
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	if len(ip) <= 8 {
		return ip + "..."
	}
	return strings.TrimSpace(ip[:8]) + "..."
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
