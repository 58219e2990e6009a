package cldatabase

import (
	"fmt"
	"littlesite/internal/models/gormzerologger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open ouvre une base sqlite ou mysql avec le logger gorm branché sur zerolog
func Open(kind, path, dsn, level string) (*gorm.DB, error) {
	conf := &gorm.Config{
		Logger: gormzerologger.New(level),
	}

	var db *gorm.DB
	var err error
	switch kind {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(path), conf)
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), conf)
	default:
		return nil, fmt.Errorf("le type de database doit etre sqlite ou mysql")
	}
	if err != nil {
		return nil, fmt.Errorf("erreur connexion base de données: %w", err)
	}

	// sqlite n'accepte qu'un écrivain à la fois
	if kind == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}
