package repository

import (
	"context"
	"errors"

	"slotswap/internal/models"

	"gorm.io/gorm"
)

// UserRepository stores student accounts. Emails are compared in their
// normalized form.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// GetByEmail returns (nil, nil) when no account uses the address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	u, err := findOne[models.User](r.db.WithContext(ctx).Where("id = ?", id))
	if err == nil && u == nil {
		return nil, models.NewNotFoundError("User", id)
	}
	return u, err
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)))
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Create(user).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return models.NewConflictError("User already exists")
	case err != nil:
		return models.NewInternalError(err)
	}
	return nil
}
