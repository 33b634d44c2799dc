// Package identity 对接外部身份服务（Supabase GoTrue），
// 本服务只保存 auth_id，密码和会话由身份服务管理。
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidToken = errors.New("无效的访问令牌")
)

// Identity 身份服务中的账号
type Identity struct {
	AuthID string `json:"id"`
	Email  string `json:"email"`
}

type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, *Session, error)
	SignOut(ctx context.Context, accessToken string) error
	// GetSession 校验访问令牌并返回对应的账号，令牌无效时返回 ErrInvalidToken
	GetSession(ctx context.Context, accessToken string) (*Identity, error)
}
