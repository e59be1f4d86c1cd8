package activities

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
)

// Directory exposes member and group lookups that join the caller's transaction.
type Directory struct {
	repo *Repository
}

func NewDirectory(repo *Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) FindMember(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (*models.Member, error) {
	return d.repo.WithTx(tx).FindMember(ctx, memberID)
}

func (d *Directory) FindGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (*models.Group, error) {
	return d.repo.WithTx(tx).FindGroup(ctx, groupID)
}

func (d *Directory) FindGroupMember(ctx context.Context, tx *gorm.DB, groupID, memberID uuid.UUID) (*models.GroupMember, error) {
	return d.repo.WithTx(tx).FindGroupMember(ctx, groupID, memberID)
}

func (d *Directory) MarkRegistrationFeePaid(ctx context.Context, tx *gorm.DB, groupID, memberID uuid.UUID) error {
	return d.repo.WithTx(tx).MarkRegistrationFeePaid(ctx, groupID, memberID)
}
