package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// Identity 是外部身份凭证校验后得到的用户身份。
type Identity struct {
	ExternalID  string
	Email       string
	DisplayName string
	Avatar      string
}

// identityClaims 是身份令牌中的声明。sub 即外部用户 ID。
type identityClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// AuthService 负责校验身份令牌并同步用户资料。账号和密码不在本服务管理范围内。
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte        // 存储密钥的字节形式
	jwtExpiry time.Duration // IssueToken 签发的令牌有效期
}

// NewAuthService 创建 AuthService 实例。
// jwtSecretKey 应从安全配置中获取。
// jwtExpiryHours 定义 token 过期的小时数。
func NewAuthService(userRepo repository.UserRepository, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24 // 默认 24 小时
	}
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Verify 校验令牌签名和有效期，返回其中的身份。失败一律返回 ErrInvalidCredential。
func (s *AuthService) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredential
	}
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		logrus.WithError(err).Debug("Token verification failed")
		return nil, ErrInvalidCredential
	}
	if claims.Subject == "" {
		return nil, ErrInvalidCredential
	}
	return &Identity{
		ExternalID:  claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Avatar:      claims.Picture,
	}, nil
}

// Authenticate 校验令牌并把身份合并写入用户资料（保留首次创建时间）。
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	identity, err := s.Verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	logCtx := logrus.WithField("user_id", identity.ExternalID)

	user, err := s.userRepo.Upsert(ctx, &domain.User{
		ID:          identity.ExternalID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Avatar:      identity.Avatar,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to upsert user profile")
		return nil, ErrInternalServer
	}
	return user, nil
}

// GetUser 返回用户资料。
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredential
		}
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to load user profile")
		return nil, ErrInternalServer
	}
	return user, nil
}

// IssueToken 签发一个身份令牌，供本地工具和测试使用。
func (s *AuthService) IssueToken(identity Identity) (string, error) {
	if identity.ExternalID == "" {
		return "", ErrInvalidInput
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		Email:   identity.Email,
		Name:    identity.DisplayName,
		Picture: identity.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ExternalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
		},
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		// 包装签名错误
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
