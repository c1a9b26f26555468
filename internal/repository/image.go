package repository

import (
	"context"
	"errors"

	"vibely/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageRepository defines storage operations for uploaded images.
type ImageRepository interface {
	Create(ctx context.Context, image *models.Image) error
	GetByHash(ctx context.Context, hash string) (*models.Image, error)
}

type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository returns a repository implementation for image metadata.
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

// Create stores image metadata. Re-uploading identical bytes keeps the first row.
func (r *imageRepository) Create(ctx context.Context, image *models.Image) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "hash"}}, DoNothing: true}).
		Create(image).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *imageRepository) GetByHash(ctx context.Context, hash string) (*models.Image, error) {
	var image models.Image
	if err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&image).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Image", hash)
		}
		return nil, models.NewInternalError(err)
	}
	return &image, nil
}
