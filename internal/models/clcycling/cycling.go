package clcycling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"littlesite/internal/models/clconfig"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	metersToMiles = 0.000621371
	metersToFeet  = 3.28084

	keyYTD    = "ytd_stats"
	keyRecent = "recent_activities"

	recentWindowDays = 14
)

var cyclingSports = map[string]struct{}{
	"ride": {}, "virtualride": {}, "gravel ride": {}, "gravelride": {}, "mtb": {},
	"mountainbikeride": {}, "e-bike ride": {}, "ebikeride": {}, "indoor cycling": {}, "cycling": {},
}

// YTDStats cumule les sorties vélo depuis le 1er janvier
type YTDStats struct {
	Distance  float64 `json:"distance"`
	Count     int     `json:"count"`
	Elevation int     `json:"elevation"`
	Time      float64 `json:"time"`
	AvgSpeed  float64 `json:"avg_speed"`
}

// Activity est une sortie prête à afficher
type Activity struct {
	Name      string  `json:"name"`
	Distance  float64 `json:"distance"`
	Elevation int     `json:"elevation"`
	Time      string  `json:"time"`
	Date      string  `json:"date"`
	AvgSpeed  float64 `json:"avg_speed"`
}

// CacheEntryStatus est affiché sur la page admin
type CacheEntryStatus struct {
	AgeHours float64 `json:"age_hours"`
	Valid    bool    `json:"valid"`
}

type apiActivity struct {
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	Sport              string  `json:"sport"`
	Distance           float64 `json:"distance"`
	ElevGain           float64 `json:"elev_gain"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
	MovingTime         int64   `json:"moving_time"`
	ElapsedTime        int64   `json:"elapsed_time"`
	StartDate          string  `json:"start_date"`
	StartDateLocal     string  `json:"start_date_local"`
}

type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// Service interroge l'API intervals.icu et garde les réponses en cache
type Service struct {
	apiKey    string
	athleteID string
	baseURL   string
	ttl       time.Duration
	client    *http.Client
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New crée le service, client nil utilise un client avec le timeout configuré
func New(cfg clconfig.CyclingConfig, client *http.Client) *Service {
	if client == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 12 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ttl := time.Duration(cfg.CacheHours) * time.Hour
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	s := &Service{
		apiKey:    cfg.ApiKey,
		athleteID: cfg.AthleteId,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		ttl:       ttl,
		client:    client,
		now:       time.Now,
		cache:     map[string]cacheEntry{},
	}
	if !s.IsAvailable() {
		log.Warn().Msg("Identifiants intervals.icu absents, données d'exemple")
	}
	return s
}

// IsAvailable est faux sans clé ou sans athlète, aucun appel réseau n'est alors tenté
func (s *Service) IsAvailable() bool {
	return s.apiKey != "" && s.athleteID != ""
}

// YTDStats ne renvoie jamais d'erreur, en cas d'échec le dernier cache ou l'exemple est servi
func (s *Service) YTDStats(ctx context.Context) YTDStats {
	if !s.IsAvailable() {
		return SampleYTDStats()
	}

	if v, ok := s.cached(keyYTD, false); ok {
		return v.(YTDStats)
	}

	now := s.now().UTC()
	start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	activities, err := s.fetchActivities(ctx, start, now)
	if err != nil {
		log.Warn().Err(err).Msg("Statistiques vélo indisponibles")
		if v, ok := s.cached(keyYTD, true); ok {
			return v.(YTDStats)
		}
		return SampleYTDStats()
	}

	stats := computeYTD(activities)
	s.store(keyYTD, stats)
	return stats
}

// RecentActivities retourne au plus n sorties des 14 derniers jours, la plus récente en tête
func (s *Service) RecentActivities(ctx context.Context, n int) []Activity {
	if !s.IsAvailable() {
		return limit(SampleActivities(), n)
	}

	if v, ok := s.cached(keyRecent, false); ok {
		return limit(v.([]Activity), n)
	}

	now := s.now().UTC()
	activities, err := s.fetchActivities(ctx, now.AddDate(0, 0, -recentWindowDays), now)
	if err != nil {
		log.Warn().Err(err).Msg("Activités vélo indisponibles")
		if v, ok := s.cached(keyRecent, true); ok {
			return limit(v.([]Activity), n)
		}
		return limit(SampleActivities(), n)
	}

	formatted := formatActivities(activities)
	s.store(keyRecent, formatted)
	return limit(formatted, n)
}

// CacheStatus donne l'âge de chaque entrée du cache
func (s *Service) CacheStatus() map[string]CacheEntryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := make(map[string]CacheEntryStatus, len(s.cache))
	for key, entry := range s.cache {
		age := s.now().Sub(entry.fetchedAt)
		status[key] = CacheEntryStatus{
			AgeHours: math.Round(age.Hours()*10) / 10,
			Valid:    age < s.ttl,
		}
	}
	return status
}

func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = map[string]cacheEntry{}
}

// cached retourne l'entrée valide, ou périmée si stale est vrai
func (s *Service) cached(key string, stale bool) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if !stale && s.now().Sub(entry.fetchedAt) >= s.ttl {
		return nil, false
	}
	return entry.value, true
}

func (s *Service) store(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{value: value, fetchedAt: s.now()}
}

func (s *Service) fetchActivities(ctx context.Context, oldest, newest time.Time) ([]apiActivity, error) {
	params := url.Values{}
	params.Set("oldest", oldest.Format("2006-01-02"))
	params.Set("newest", newest.Format("2006-01-02"))
	endpoint := fmt.Sprintf("%s/athlete/%s/activities?%s", s.baseURL, url.PathEscape(s.athleteID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte("API_KEY:" + s.apiKey))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intervals.icu request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("intervals.icu GET activities failed with status %d", resp.StatusCode)
	}

	var activities []apiActivity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return activities, nil
}

func isCycling(a apiActivity) bool {
	sport := a.Sport
	if sport == "" {
		sport = a.Type
	}
	_, ok := cyclingSports[strings.ToLower(strings.TrimSpace(sport))]
	return ok
}

func (a apiActivity) elevation() float64 {
	if a.ElevGain != 0 {
		return a.ElevGain
	}
	return a.TotalElevationGain
}

func (a apiActivity) moving() int64 {
	if a.MovingTime != 0 {
		return a.MovingTime
	}
	return a.ElapsedTime
}

func (a apiActivity) start() time.Time {
	for _, value := range []string{a.StartDate, a.StartDateLocal} {
		if value == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, value); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func computeYTD(activities []apiActivity) YTDStats {
	var distance, elevation float64
	var moving int64
	count := 0
	for _, a := range activities {
		if !isCycling(a) {
			continue
		}
		distance += a.Distance
		elevation += a.elevation()
		moving += a.moving()
		count++
	}

	return YTDStats{
		Distance:  round1(distance * metersToMiles),
		Count:     count,
		Elevation: int(math.Round(elevation * metersToFeet)),
		Time:      round1(float64(moving) / 3600),
		AvgSpeed:  avgSpeed(distance, moving),
	}
}

func formatActivities(activities []apiActivity) []Activity {
	rides := make([]apiActivity, 0, len(activities))
	for _, a := range activities {
		if isCycling(a) {
			rides = append(rides, a)
		}
	}
	sort.SliceStable(rides, func(i, j int) bool {
		return rides[i].start().After(rides[j].start())
	})

	formatted := make([]Activity, 0, len(rides))
	for _, a := range rides {
		name := a.Name
		if name == "" {
			name = "Cycling Activity"
		}
		date := ""
		if start := a.start(); !start.IsZero() {
			date = start.Format("January 2, 2006")
		}
		formatted = append(formatted, Activity{
			Name:      name,
			Distance:  round1(a.Distance * metersToMiles),
			Elevation: int(math.Round(a.elevation() * metersToFeet)),
			Time:      FormatDuration(a.moving()),
			Date:      date,
			AvgSpeed:  avgSpeed(a.Distance, a.moving()),
		})
	}
	return formatted
}

// FormatDuration affiche "1h 45m" ou "45m"
func FormatDuration(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// avgSpeed en mph, 0 sans temps de déplacement
func avgSpeed(distanceMeters float64, movingSeconds int64) float64 {
	if movingSeconds <= 0 {
		return 0
	}
	return round1(distanceMeters * metersToMiles / (float64(movingSeconds) / 3600))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func limit(activities []Activity, n int) []Activity {
	if n >= 0 && n < len(activities) {
		activities = activities[:n]
	}
	out := make([]Activity, len(activities))
	copy(out, activities)
	return out
}

// SampleYTDStats est servi sans identifiants ou quand l'API échoue
func SampleYTDStats() YTDStats {
	return YTDStats{
		Distance:  2450.5,
		Count:     127,
		Elevation: 45600,
		Time:      156.2,
		AvgSpeed:  15.7,
	}
}

func SampleActivities() []Activity {
	return []Activity{
		{Name: "Morning Training Ride", Distance: 25.3, Elevation: 1200, Time: "1h 45m", Date: "January 5, 2025", AvgSpeed: 14.5},
		{Name: "Weekend Century", Distance: 102.1, Elevation: 3500, Time: "5h 30m", Date: "January 3, 2025", AvgSpeed: 18.6},
		{Name: "Recovery Spin", Distance: 15.2, Elevation: 400, Time: "45m", Date: "January 1, 2025", AvgSpeed: 20.3},
	}
}
