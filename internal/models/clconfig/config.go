package clconfig

import (
	"fmt"
	"log/syslog"
	"os"
	"strings"

	"github.com/andskur/argon2-hashing"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string        `yaml:"trustedproxies"`
	TrustedPlatform string          `yaml:"trustedplatform"`
	Database        DatabaseConfig  `yaml:"database"`
	StaticPath      string          `yaml:"staticpath"`
	User            UserConfig      `yaml:"user"`
	Production      bool            `yaml:"production"`
	Listen          ListenConfig    `yaml:"listen"`
	Logger          LoggerConfig    `yaml:"logger"`
	Site            SiteConfig      `yaml:"site"`
	Blog            BlogConfig      `yaml:"blog"`
	Cycling         CyclingConfig   `yaml:"cycling"`
	Analytics       AnalyticsConfig `yaml:"analytics"`
}

type SiteConfig struct {
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description"`
	BaseURL     string         `yaml:"baseurl" validate:"omitempty,url"`
	Author      string         `yaml:"author"`
	Theme       string         `yaml:"theme"`
	Language    string         `yaml:"language"`
	Menu        []MenuItem     `yaml:"menu"`
	Hardware    []HardwareItem `yaml:"hardware"`
}

type BlogConfig struct {
	PostsDir     string `yaml:"postsdir"`
	CacheMinutes int    `yaml:"cacheminutes" validate:"gte=0"`
}

type CyclingConfig struct {
	ApiKey         string `yaml:"apikey"`
	AthleteId      string `yaml:"athleteid"`
	BaseURL        string `yaml:"baseurl" validate:"omitempty,url"`
	CacheHours     int    `yaml:"cachehours" validate:"gte=0"`
	TimeoutSeconds int    `yaml:"timeoutseconds" validate:"gte=0"`
}

type AnalyticsConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Db            string      `yaml:"db" validate:"omitempty,oneof=sqlite mysql"`
	Path          string      `yaml:"path"`
	Dsn           string      `yaml:"dsn"`
	Redis         RedisConfig `yaml:"redis"`
	Async         bool        `yaml:"async"`
	GeoIP         string      `yaml:"geoip"`
	RetentionDays int         `yaml:"retentiondays" validate:"gte=0"`
	Exclude       []string    `yaml:"exclude"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Db   int    `yaml:"db"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path" validate:"required_if=Enable true"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

type ListenConfig struct {
	Website string `yaml:"website"`
}

type UserConfig struct {
	Login string `yaml:"login"`
	Pass  string `yaml:"pass"`
	Hash  string `yaml:"hash"`
}

type DatabaseConfig struct {
	Redis RedisConfig `yaml:"redis"`
	Db    string      `yaml:"db" validate:"required,oneof=sqlite mysql"`
	Path  string      `yaml:"path" validate:"required_if=Db sqlite"`
	Dsn   string      `yaml:"dsn" validate:"required_if=Db mysql"`
}

// HardwareItem est une ligne de la page /hardware
type HardwareItem struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
}

type MenuItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
	Link  string `yaml:"link"`
	Img   string `yaml:"img"`
}

func CreateExampleConfig(filename string) (string, error) {
	example := &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "./littlesite.db",
		},
		Analytics: AnalyticsConfig{
			Enabled: true,
			Async:   true,
		},
		User: UserConfig{
			Login: "admin",
			Pass:  "admin1234",
		},
		StaticPath: "./static",
		Production: false,
		Logger: LoggerConfig{
			Level: "info",
		},
		Listen: ListenConfig{
			Website: "0.0.0.0:8080",
		},
		Site: SiteConfig{
			Name:        "Mon site perso",
			Description: "Blog, vélo et un peu de matériel",
			BaseURL:     "http://localhost:8080",
			Author:      "admin",
			Theme:       "blue",
			Language:    "fr-FR",
			Menu: []MenuItem{
				{Key: "blog", Value: "Blog"},
				{Key: "biking", Value: "Vélo"},
				{Key: "hardware", Value: "Matériel"},
				{Key: "about", Value: "À propos"},
			},
			Hardware: []HardwareItem{
				{Name: "Raspberry Pi 4", Category: "Serveur", Description: "héberge ce site"},
				{Name: "Vélo de route", Category: "Vélo", Description: "cadre acier, 2x11"},
			},
		},
		Blog: BlogConfig{
			PostsDir:     "./posts",
			CacheMinutes: 5,
		},
		Cycling: CyclingConfig{
			BaseURL:        "https://intervals.icu/api/v1",
			CacheHours:     12,
			TimeoutSeconds: 12,
		},
	}

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:8000"
		example.Production = true
		example.Database.Path = "/var/lib/littlesite/sqlite.db"
		example.StaticPath = "/var/lib/littlesite/static"
		example.Blog.PostsDir = "/var/lib/littlesite/posts"
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/littlesite/littlesite.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/littlesite/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// Charger la configuration YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire le fichier %s: %v", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("erreur de parsing YAML: %v", err)
	}

	return &config, nil
}

// LoadAndPrepare charge le fichier, hash le mot de passe admin s'il est en clair,
// puis applique .env et les valeurs par défaut avant validation.
func LoadAndPrepare(filename string) (*Config, error) {
	conf, err := LoadConfig(filename)
	if err != nil {
		return nil, err
	}

	if conf.User.Pass != "" {
		if err := conf.Validate(); err != nil {
			return nil, err
		}
		if err := conf.HashPassword(); err != nil {
			return nil, err
		}
		if err := WriteConfigYaml(filename, conf); err != nil {
			return nil, err
		}
	}

	// le .env est optionnel, un mot de passe venant de l'environnement n'est jamais écrit sur disque
	_ = godotenv.Load()
	conf.OverrideFromEnv()
	conf.SetDefaults()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.User.Pass != "" {
		if err := conf.HashPassword(); err != nil {
			return nil, err
		}
	}

	return conf, nil
}

func (c *Config) OverrideFromEnv() {
	if val := os.Getenv("SITE_ADMIN_LOGIN"); val != "" {
		c.User.Login = val
	}
	if val := os.Getenv("SITE_ADMIN_PASSWORD"); val != "" {
		c.User.Pass = val
	}
	if val := os.Getenv("INTERVALS_API_KEY"); val != "" {
		c.Cycling.ApiKey = val
	}
	if val := os.Getenv("INTERVALS_ATHLETE_ID"); val != "" {
		c.Cycling.AthleteId = val
	}
}

func (c *Config) SetDefaults() {
	if c.Listen.Website == "" {
		c.Listen.Website = "localhost:8080"
	}
	if strings.HasPrefix(c.Listen.Website, ":") {
		c.Listen.Website = "localhost" + c.Listen.Website
	}
	if c.Site.Language == "" {
		c.Site.Language = "fr-FR"
	}
	if c.Blog.PostsDir == "" {
		c.Blog.PostsDir = "./posts"
	}
	if c.Blog.CacheMinutes == 0 {
		c.Blog.CacheMinutes = 5
	}
	if c.Cycling.BaseURL == "" {
		c.Cycling.BaseURL = "https://intervals.icu/api/v1"
	}
	if c.Cycling.CacheHours == 0 {
		c.Cycling.CacheHours = 12
	}
	if c.Cycling.TimeoutSeconds == 0 {
		c.Cycling.TimeoutSeconds = 12
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration invalide: %w", err)
	}
	if c.User.Pass != "" && len(c.User.Pass) < 8 {
		return fmt.Errorf("le mot de passe doit contenir au moins 8 caractères")
	}
	return nil
}

// HashPassword remplace le mot de passe en clair par son hash argon2id
func (c *Config) HashPassword() error {
	hash, err := argon2.GenerateFromPassword([]byte(c.User.Pass), argon2.DefaultParams)
	if err != nil {
		return err
	}
	c.User.Hash = string(hash)
	c.User.Pass = ""
	return nil
}

func CreateExample(shouldCreateExample bool, configFile string) {
	// Handle example creation
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = "littlesite.yaml"
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("erreur création exemple: %v", err)
	}

	fmt.Printf("✅ Fichier exemple créé: %s\n", filename)
	fmt.Println("⚠️  user.pass sera automatiquement hash en argon2 dans user.hash au premier lancement")
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("Littlesite version %s", version)

	logPrintf("Mode Production %v", config.Production)
	logPrintf("Administrateur login %s", config.User.Login)

	logPrintf("Database")
	if config.Database.Db == "sqlite" {
		logPrintf("  • Type sqlite")
		logPrintf("  • Path %s", config.Database.Path)
	}
	if config.Database.Db == "mysql" {
		logPrintf("  • Type mysql")
	}
	if config.Database.Redis.Addr != "" {
		logPrintf("  • Cache redis %s", config.Database.Redis.Addr)
	}

	if config.Analytics.Enabled {
		logPrintf("Analytics activé")
		if config.Analytics.Db == "sqlite" && config.Analytics.Path != "" {
			logPrintf("  • Sqlite path %s", config.Analytics.Path)
		} else if config.Analytics.Db == "mysql" && config.Analytics.Dsn != "" {
			logPrintf("  • Base mysql dédiée")
		} else {
			logPrintf("  • La base est la même que la principale")
		}
		if config.Analytics.Redis.Addr != "" {
			logPrintf("  • Redis addr %s", config.Analytics.Redis.Addr)
		}
		if config.Analytics.GeoIP != "" {
			logPrintf("  • GeoIP %s", config.Analytics.GeoIP)
		}
		if config.Analytics.RetentionDays > 0 {
			logPrintf("  • Rétention %d jours", config.Analytics.RetentionDays)
		}
	} else {
		logPrintf("Analytics désactivé")
	}

	logPrintf("Blog")
	logPrintf("  • Dossier %s (cache %d min)", config.Blog.PostsDir, config.Blog.CacheMinutes)

	if config.Cycling.ApiKey != "" && config.Cycling.AthleteId != "" {
		logPrintf("Vélo: athlète %s, cache %dh", config.Cycling.AthleteId, config.Cycling.CacheHours)
	} else {
		logPrintf("Vélo: pas d'identifiants, données d'exemple")
	}

	// Logger
	logPrintf("Logger en level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  Log en fichier activé")
		logPrintf("  • Path %s", config.Logger.File.Path)
		logPrintf("  • Max size %d", config.Logger.File.MaxSize)
		logPrintf("  • Max age %d", config.Logger.File.MaxAge)
		logPrintf("  • Max backup %d", config.Logger.File.MaxBackups)
		logPrintf("  • Compression %v", config.Logger.File.Compress)
	} else {
		logPrintf("  Log en fichier désactivé")
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  Log en syslog activé")
		logPrintf("  • Protocol %s", config.Logger.Syslog.Protocol)
		logPrintf("  • Address %s", config.Logger.Syslog.Address)
		logPrintf("  • Tag %s", config.Logger.Syslog.Tag)
	} else {
		logPrintf("  Log en syslog désactivé")
	}
}

// Info logue avec printf
func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
