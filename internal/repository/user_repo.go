package repository

import (
	"context"
	"errors"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/model"

	"gorm.io/gorm"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, "id = ?", id, "Failed to find user by ID")
}

func (r *GormUserRepository) FindByAuthID(ctx context.Context, authID string) (*model.User, error) {
	return r.findOne(ctx, "auth_id = ?", authID, "Failed to find user by auth ID")
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = ?", email, "Failed to find user by email")
}

func (r *GormUserRepository) findOne(ctx context.Context, query string, arg interface{}, failMessage string) (*model.User, error) {
	var user model.User
	err := conn(ctx, r.db).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Database(failMessage, err)
	}
	return &user, nil
}

func (r *GormUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, apperror.Database("Failed to check email existence", err)
	}
	return count > 0, nil
}

func (r *GormUserRepository) Save(ctx context.Context, in model.CreateUserInput) (*model.User, error) {
	user, err := model.NewUser(in)
	if err != nil {
		return nil, err
	}
	if err := conn(ctx, r.db).Create(user).Error; err != nil {
		if IsDuplicateEntry(err) {
			return nil, apperror.Database("Email already exists", err)
		}
		return nil, apperror.Database("Failed to save user", err)
	}
	return user, nil
}

func (r *GormUserRepository) UpdateLastLogin(ctx context.Context, id int64) (*model.User, error) {
	result := conn(ctx, r.db).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("last_login_at", time.Now())
	if result.Error != nil {
		return nil, apperror.Database("Failed to update last login", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *GormUserRepository) Delete(ctx context.Context, id int64) error {
	result := conn(ctx, r.db).Where("id = ?", id).Delete(&model.User{})
	if result.Error != nil {
		return apperror.Database("Failed to delete user", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
