package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"profense_backend/internal/config"
	"profense_backend/internal/model"
	"profense_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	FindByEmail(email string) (*model.User, error)
	FindByID(id uint) (*model.User, error)
	Create(u *model.User) error
	Save(u *model.User) error
}

// AuthService 负责注册、登录与令牌签发
type AuthService struct {
	users UserStore
	jwt   *config.JWTConfig
}

func NewAuthService(users UserStore, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{users: users, jwt: jwtCfg}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *AuthService) Register(req RegisterRequest) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(email); err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, util.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := model.Student
	switch model.UserRole(req.Role) {
	case model.Teacher:
		role = model.Teacher
	case model.Admin:
		// admin 账号只能由现有管理员创建
		return nil, fmt.Errorf("%w: cannot self-register as admin", util.ErrValidation)
	}

	user := &model.User{
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		Password:  string(hashed),
		Role:      role,
		LastLogin: time.Now(),
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	token, err := util.GenerateJWT(user, s.jwt.Secret, s.jwt.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Login(req LoginRequest) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Disabled {
		return nil, util.ErrPermissionDenied
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	user.LastLogin = time.Now()
	if err := s.users.Save(user); err != nil {
		return nil, err
	}

	token, err := util.GenerateJWT(user, s.jwt.Secret, s.jwt.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Profile(userID uint) (*model.User, error) {
	return s.users.FindByID(userID)
}
