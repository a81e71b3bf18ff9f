package database

import (
	"context"
	"errors"

	"lookout/internal/domain"

	"gorm.io/gorm"
)

func GetUserFromID(id uint) (domain.User, error) {
	var user domain.User
	err := DB.Where("id = ?", id).First(&user).Error
	return user, err
}

func GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func CreateUser(ctx context.Context, user *domain.User) error {
	return DB.WithContext(ctx).Create(user).Error
}

// HasAnyUser reports whether at least one account exists. The first
// registered account is promoted to admin.
func HasAnyUser(ctx context.Context) (bool, error) {
	var user domain.User
	err := DB.WithContext(ctx).Select("id").Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func UpdateUserPassword(ctx context.Context, id uint, hashedPassword string) error {
	return DB.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("password", hashedPassword).Error
}
