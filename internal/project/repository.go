package project

import (
	"context"

	"site-builder/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	FindByID(ctx context.Context, id string) (*Project, error)
	UpdateContent(ctx context.Context, id string, content string) (*Project, error)
	ListByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]ProjectSummary, error)
}

type ProjectRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) ProjectRepository {
	return &ProjectRepositoryImpl{db: db}
}

func (r *ProjectRepositoryImpl) Create(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *ProjectRepositoryImpl) FindByID(ctx context.Context, id string) (*Project, error) {
	var project Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateContent replaces the stored document, returns gorm.ErrRecordNotFound for unknown ids
func (r *ProjectRepositoryImpl) UpdateContent(ctx context.Context, id string, content string) (*Project, error) {
	ctx, span := telemetry.StartSpan(ctx, "project.update_content",
		attribute.String("project.id", id),
		attribute.Int("project.content_length", len(content)),
	)
	defer span.End()

	var project Project
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Project{}).Where("id = ?", id).Update("content", content)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("id = ?", id).First(&project).Error
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return &project, nil
}

// ListByUserID returns one page of the user's projects, newest first
func (r *ProjectRepositoryImpl) ListByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]ProjectSummary, error) {
	offset := (page - 1) * pageSize

	var summaries []ProjectSummary
	err := r.db.WithContext(ctx).
		Model(&Project{}).
		Select("id, prompt, created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []ProjectSummary{}
	}
	return summaries, nil
}
