package store

import (
	"context"
	"errors"
	"log"
	"time"

	"StoryReel-server/models"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// GormStore backs the Store interface with MySQL.
type GormStore struct {
	db *gorm.DB
}

func InitDB(dsn string) *GormStore {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.Project{}, &models.LogEntry{}); err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
	log.Println("database connected")
	return &GormStore{db: db}
}

func (s *GormStore) LoadProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) SaveProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *GormStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&projects).Error
	return projects, err
}

func (s *GormStore) DeleteProject(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// logs keep a weak reference: clear it instead of cascading
		if err := tx.Model(&models.LogEntry{}).Where("project_id = ?", id).
			Update("project_id", "").Error; err != nil {
			return err
		}
		return tx.Delete(&models.Project{}, "id = ?", id).Error
	})
}

func (s *GormStore) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) ListLogs(ctx context.Context, filter LogFilter) ([]models.LogEntry, error) {
	q := s.db.WithContext(ctx).Model(&models.LogEntry{})
	if filter.Level != "" {
		q = q.Where("level = ?", filter.Level)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var entries []models.LogEntry
	err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (s *GormStore) ClearLogs(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&models.LogEntry{}).Error
}
