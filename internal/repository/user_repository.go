package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"missionchat/internal/model"
)

// ErrDuplicateKey reports a unique-index violation on insert. The store
// never says which of username/email collided.
var ErrDuplicateKey = errors.New("duplicate key")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user in a single statement. Uniqueness of username
// and email is enforced by the indexes, so a conflict leaves no partial
// write behind.
func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

// GetByUsernameOrEmail looks up a user whose username or email equals the
// identifier, case-sensitive as stored.
func (r *UserRepository) GetByUsernameOrEmail(identifier string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("username = ? OR email = ?", identifier, identifier).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by identifier failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) UpdateLastLogin(id uint, at time.Time) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("last_login", at).Error; err != nil {
		return fmt.Errorf("update last login failed: %w", err)
	}
	return nil
}

// Deactivate flips the active flag; accounts are never physically deleted.
func (r *UserRepository) Deactivate(id uint) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate user failed: %w", err)
	}
	return nil
}
