package repository

import (
	"family_chat_service/internal/attachment/domain"

	"gorm.io/gorm"
)

// AttachmentRepo definition attachment descriptor registry
type AttachmentRepo interface {
	AutoMigrate() error
	Create(att *domain.FileAttachment) error
	FindByRef(fileRef string) (*domain.FileAttachment, error)
	FindRecentByKind(kind string, limit int) ([]domain.FileAttachment, error)
}

type attachmentRepo struct {
	db *gorm.DB
}

// NewAttachmentRepo create AttachmentRepo
func NewAttachmentRepo(db *gorm.DB) AttachmentRepo {
	return &attachmentRepo{db: db}
}

func (r *attachmentRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.FileAttachment{})
}

func (r *attachmentRepo) Create(att *domain.FileAttachment) error {
	return r.db.Create(att).Error
}

func (r *attachmentRepo) FindByRef(fileRef string) (*domain.FileAttachment, error) {
	var att domain.FileAttachment
	if err := r.db.Where("file_ref = ?", fileRef).First(&att).Error; err != nil {
		return nil, err
	}
	return &att, nil
}

func (r *attachmentRepo) FindRecentByKind(kind string, limit int) ([]domain.FileAttachment, error) {
	var atts []domain.FileAttachment
	err := r.db.Where("file_kind = ?", kind).
		Order("created_at desc").
		Limit(limit).
		Find(&atts).Error
	return atts, err
}
