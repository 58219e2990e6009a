package cllog

import (
	"fmt"
	"io"
	"littlesite/internal/models/clconfig"
	"log/syslog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SyslogLevelWriter route chaque événement zerolog vers la priorité syslog correspondante
type SyslogLevelWriter struct {
	Writer *syslog.Writer
}

// InitLogger configure le logger global Zerolog
func InitLogger(cfg clconfig.LoggerConfig, production bool) error {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		dir := path.Dir(file)
		file = path.Join(path.Base(dir), path.Base(file))
		return file + ":" + strconv.Itoa(line)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	writers, err := buildWriters(cfg, production)
	if err != nil {
		return err
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()

	environment := "developpement"
	if production {
		environment = "production"
	}
	log.Info().
		Str("environment", environment).
		Str("level", cfg.Level).
		Bool("log_to_file", cfg.File.Enable).
		Bool("log_to_syslog", cfg.Syslog.Enable).
		Msg("Logger initialized")
	return nil
}

func buildWriters(cfg clconfig.LoggerConfig, production bool) ([]io.Writer, error) {
	var writers []io.Writer

	// console en développement uniquement
	if !production {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	if cfg.File.Enable {
		fileWriter, err := setupFileWriter(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to setup file writer: %w", err)
		}
		writers = append(writers, fileWriter)
	}

	if cfg.Syslog.Enable {
		syslogWriter, err := setupSyslogWriter(cfg.Syslog)
		if err != nil {
			return nil, err
		}
		writers = append(writers, syslogWriter)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	return writers, nil
}

// Write est utilisé quand le niveau n'est pas connu
func (w *SyslogLevelWriter) Write(p []byte) (n int, err error) {
	return len(p), w.Writer.Info(string(p))
}

// WriteLevel implémente zerolog.LevelWriter
func (w *SyslogLevelWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	msg := string(p)
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		err = w.Writer.Debug(msg)
	case zerolog.WarnLevel:
		err = w.Writer.Warning(msg)
	case zerolog.ErrorLevel:
		err = w.Writer.Err(msg)
	case zerolog.FatalLevel, zerolog.PanicLevel:
		err = w.Writer.Crit(msg)
	default:
		err = w.Writer.Info(msg)
	}
	return len(p), err
}

func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// setupFileWriter configure le writer pour les fichiers avec rotation
func setupFileWriter(cfg clconfig.LoggerFileConfig) (io.Writer, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}, nil
}

// setupSyslogWriter configure le writer pour syslog, local ou distant
func setupSyslogWriter(cfg clconfig.LoggerSyslogConfig) (io.Writer, error) {
	tag := cfg.Tag
	if tag == "" {
		tag = "littlesite"
	}
	priority := cfg.Priority
	if priority == 0 {
		priority = syslog.LOG_INFO | syslog.LOG_LOCAL0
	}

	var writer *syslog.Writer
	var err error
	if cfg.Protocol == "" || cfg.Address == "" {
		writer, err = syslog.New(priority, tag)
	} else {
		writer, err = syslog.Dial(cfg.Protocol, cfg.Address, priority, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}

	return &SyslogLevelWriter{Writer: writer}, nil
}
