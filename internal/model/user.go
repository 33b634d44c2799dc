package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"billsplit/internal/apperror"
)

const MaxNicknameLength = 50

// User 用户表，auth_id 对应外部身份服务中的用户
type User struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthID      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Email       string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname    string     `gorm:"type:varchar(50);not null" json:"nickname"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string {
	return "user"
}

type CreateUserInput struct {
	AuthID   string
	Email    string
	Nickname string
}

// NewUser 校验注册信息并构造待写入的用户
func NewUser(in CreateUserInput) (*User, error) {
	if strings.TrimSpace(in.AuthID) == "" {
		return nil, apperror.Domain(apperror.CodeInvalidAuthID, "Auth ID is required")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, apperror.Domain(apperror.CodeInvalidEmail, "Email is required")
	}
	nickname := strings.TrimSpace(in.Nickname)
	if nickname == "" {
		return nil, apperror.Domain(apperror.CodeInvalidNickname, "Nickname is required")
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return nil, apperror.Domain(apperror.CodeInvalidNicknameLength, "Nickname must be less than 50 characters")
	}

	return &User{
		AuthID:   in.AuthID,
		Email:    email,
		Nickname: nickname,
	}, nil
}
