package common

import (
	"context"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tinyclassified/config"
	"tinyclassified/database"
)

// ConnectStore opens the listing and user store selected by the
// configuration.
func ConnectStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	if cfg.Database.Driver == "mongo" {
		log.Println("connecting to mongo at:", cfg.Database.MongoURI)
		store, err := database.ConnectMongo(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	log.Println("opening sqlite db at:", cfg.Database.SQLitePath)
	store, err := database.OpenSQLite(cfg.Database.SQLitePath)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ConnectAnalyticsDb opens the separate analytics database. An empty path
// disables analytics and returns nil.
func ConnectAnalyticsDb(path string) *gorm.DB {
	if path == "" {
		log.Println("analytics_db not set - analytics will be disabled")
		return nil
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Println("Error opening analytics sqlite db: " + err.Error())
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Println("Error opening analytics sqlite db: " + err.Error())
		return nil
	}
	sqlDB.SetMaxOpenConns(1)

	log.Println("opened analytics sqlite db at:", path)
	return db
}
