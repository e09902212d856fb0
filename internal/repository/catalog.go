package repository

import (
	"context"
	"errors"

	"pulsehub/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogInterface persists the topic catalog.
type CatalogInterface interface {
	Upsert(ctx context.Context, rec *model.TopicRecord) error
	GetByTopicID(ctx context.Context, topicID string) (*model.TopicRecord, error)
	List(ctx context.Context, prefix, instance string, offset, limit int) ([]model.TopicRecord, int64, error)
	ListByInstance(ctx context.Context, instance string) ([]model.TopicRecord, error)
	PingContext(ctx context.Context) error
	WithTx(tx *gorm.DB) any
}

// CatalogRepository implementation of CatalogInterface for MySQL
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Upsert inserts the record or refreshes its state if the topic id exists.
func (r *CatalogRepository) Upsert(ctx context.Context, rec *model.TopicRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(rec).Error
}

func (r *CatalogRepository) GetByTopicID(ctx context.Context, topicID string) (*model.TopicRecord, error) {
	var rec model.TopicRecord
	if err := r.db.WithContext(ctx).Where("topic_id = ?", topicID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *CatalogRepository) List(ctx context.Context, prefix, instance string, offset, limit int) ([]model.TopicRecord, int64, error) {
	var recs []model.TopicRecord
	var total int64

	db := r.db.WithContext(ctx).Model(&model.TopicRecord{})
	if prefix != "" {
		db = db.Where("label LIKE ?", prefix+"%")
	}
	if instance != "" {
		db = db.Where("instance = ?", instance)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Offset(offset).Limit(limit).Order("id DESC").Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (r *CatalogRepository) ListByInstance(ctx context.Context, instance string) ([]model.TopicRecord, error) {
	var recs []model.TopicRecord
	err := r.db.WithContext(ctx).Where("instance = ?", instance).Find(&recs).Error
	return recs, err
}

func (r *CatalogRepository) WithTx(tx *gorm.DB) any {
	return &CatalogRepository{db: tx}
}

func (r *CatalogRepository) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
