package repository

import (
	"fmt"

	"gorm.io/gorm"

	"jupyter-proxy-apps/internal/model"
)

type CommentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(comment *model.Comment) error {
	if err := r.db.Create(comment).Error; err != nil {
		return fmt.Errorf("create comment failed: %w", err)
	}
	return nil
}

// ListLatest returns up to limit comments, newest first.
func (r *CommentRepository) ListLatest(limit int) ([]model.Comment, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var comments []model.Comment
	if err := r.db.Order("date DESC").Order("id DESC").Limit(limit).Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("list comments failed: %w", err)
	}
	return comments, nil
}
