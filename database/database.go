// File: /database/database.go
package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"chyrp-api/config"
	"chyrp-api/logger"
	"chyrp-api/models"
)

// Open picks the gorm dialector for the configured driver.
func Open(driver, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func Initialize(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(cfg.Database.Driver, cfg.DatabaseDSN(), &gorm.Config{
		Logger:         logger.GormLogger(log, cfg.Database.LogQueries),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Database.Driver == "sqlite" {
		// one writer at a time, otherwise concurrent transactions hit SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Post{},
		&models.Tag{},
		&models.PostTag{},
		&models.PostMedia{},
		&models.PostLike{},
		&models.PostView{},
		&models.Comment{},
		&models.Webmention{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	addCustomIndexes(db, log)
	return nil
}

func addCustomIndexes(db *gorm.DB, log *zap.Logger) {
	indexes := []string{
		// Feed ordering
		"CREATE INDEX IF NOT EXISTS idx_posts_created_id ON posts(created_at DESC, id DESC)",
		// Like counts per post
		"CREATE INDEX IF NOT EXISTS idx_post_likes_post ON post_likes(post_id)",
		"CREATE INDEX IF NOT EXISTS idx_post_tags_tag ON post_tags(tag_id)",
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			// MySQL has no IF NOT EXISTS for indexes, it fails on the second run
			log.Warn("could not create index", zap.String("statement", stmt), zap.Error(err))
		}
	}
}

// SeedData populates the categories a fresh install ships with.
func SeedData(db *gorm.DB, log *zap.Logger) error {
	var count int64
	if err := db.Model(&models.Category{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		log.Info("database already has categories, skipping seed")
		return nil
	}

	categories := []models.Category{
		{Name: "General", Slug: "general", Description: "Everything else"},
		{Name: "Photography", Slug: "photography", Description: "Photos and galleries"},
		{Name: "Music", Slug: "music", Description: "Audio posts and listening notes"},
		{Name: "Links", Slug: "links", Description: "Things worth reading"},
	}
	if err := db.Create(&categories).Error; err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	log.Info("database seeded", zap.Int("categories", len(categories)))
	return nil
}
