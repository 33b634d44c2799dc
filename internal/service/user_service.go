package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"billsplit/internal/apperror"
	"billsplit/internal/identity"
	"billsplit/internal/model"
	"billsplit/internal/repository"
)

type UserService struct {
	users    repository.UserRepository
	provider identity.Provider
	logger   *slog.Logger
}

func NewUserService(users repository.UserRepository, provider identity.Provider, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:    users,
		provider: provider,
		logger:   logger.With("component", "user_service"),
	}
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Nickname string `json:"nickname" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	User    *model.User       `json:"user"`
	Session *identity.Session `json:"session"`
}

// Signup 先校验本地数据再注册外部账号，避免外部账号创建后本地写入失败
func (s *UserService) Signup(ctx context.Context, req *SignupRequest) (*model.User, error) {
	email := strings.TrimSpace(req.Email)
	if _, err := model.NewUser(model.CreateUserInput{AuthID: "pending", Email: email, Nickname: req.Nickname}); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.Domain(apperror.CodeEmailAlreadyExists, "Email already exists")
	}

	id, err := s.provider.SignUp(ctx, email, req.Password, map[string]interface{}{"nickname": req.Nickname})
	if err != nil {
		s.logger.Warn("外部注册失败", "email", email, "error", err)
		return nil, apperror.Auth(apperror.CodeSignupFailed, "Sign up failed")
	}

	user, err := s.users.Save(ctx, model.CreateUserInput{
		AuthID:   id.AuthID,
		Email:    email,
		Nickname: req.Nickname,
	})
	if err != nil {
		s.logger.Error("保存用户失败", "auth_id", id.AuthID, "error", err)
		return nil, err
	}

	s.logger.Info("用户注册成功", "user_id", user.ID)
	return user, nil
}

func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	id, session, err := s.provider.SignInWithPassword(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		s.logger.Info("登录失败", "email", req.Email, "error", err)
		return nil, apperror.Auth(apperror.CodeLoginFailed, "Invalid email or password")
	}

	user, err := s.users.FindByAuthID(ctx, id.AuthID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	user, err = s.users.UpdateLastLogin(ctx, user.ID)
	if err != nil {
		return nil, translateNotFound(err)
	}

	return &LoginResult{User: user, Session: session}, nil
}

func (s *UserService) Logout(ctx context.Context, accessToken string) error {
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		s.logger.Warn("退出登录失败", "error", err)
		return apperror.Auth(apperror.CodeLogoutFailed, "Logout failed")
	}
	return nil
}

// ResolveSession 由访问令牌得到本地用户
func (s *UserService) ResolveSession(ctx context.Context, accessToken string) (*model.User, error) {
	id, err := s.provider.GetSession(ctx, accessToken)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidToken) {
			s.logger.Warn("校验会话失败", "error", err)
		}
		return nil, apperror.Auth(apperror.CodeUnauthorized, "Unauthorized")
	}

	user, err := s.users.FindByAuthID(ctx, id.AuthID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return user, nil
}

func (s *UserService) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return user, nil
}

// DeleteAccount 只删除本地用户；仍有支付记录时由外键约束拒绝
func (s *UserService) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return translateNotFound(err)
	}
	s.logger.Info("用户已删除", "user_id", userID)
	return nil
}
