// Package auth 签发与校验 RS256 令牌。
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hirelane/internal/config"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	issuer = "hirelane"
	leeway = 5 * time.Second
)

var (
	// ErrTokenExpired 表示令牌已过期，调用方可据此提示刷新。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid 覆盖签名、格式、签发方等其余校验失败。
	ErrTokenInvalid = errors.New("token invalid")
	// ErrWrongTokenType 表示把刷新令牌当访问令牌用，或者反过来。
	ErrWrongTokenType = errors.New("wrong token type")
)

// AuthService 持有签名密钥与两类令牌的有效期。
type AuthService struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	parser          *jwt.Parser
}

// TokenPair 封装访问令牌与刷新令牌。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenClaims 是令牌中的业务字段。
// 刷新令牌必须带 jti，登出时据此加入黑名单；IsAdmin 只出现在访问令牌里。
type TokenClaims struct {
	UserID    uint   `json:"user_id"`
	TokenType string `json:"token_type"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 密钥并构造服务实例。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	if len(privateKeyPEM) == 0 || len(publicKeyPEM) == 0 {
		return nil, errors.New("both private and public key pem are required")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	return &AuthService{
		privateKey:      privateKey,
		publicKey:       publicKey,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}, nil
}

// NewAuthServiceFromConfig 从磁盘读取密钥文件。
func NewAuthServiceFromConfig(cfg config.AuthConfig) (*AuthService, error) {
	privatePEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewAuthService(privatePEM, publicPEM, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

// GenerateTokenPair 为用户签发一对新令牌。
func (s *AuthService) GenerateTokenPair(userID uint, isAdmin bool) (TokenPair, error) {
	now := time.Now()
	base := func(ttl time.Duration) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		}
	}

	access := TokenClaims{UserID: userID, TokenType: TokenTypeAccess, IsAdmin: isAdmin, RegisteredClaims: base(s.accessTokenTTL)}
	refresh := TokenClaims{UserID: userID, TokenType: TokenTypeRefresh, RegisteredClaims: base(s.refreshTokenTTL)}
	refresh.ID = uuid.NewString()

	var pair TokenPair
	var err error
	if pair.AccessToken, err = s.sign(access); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.sign(refresh); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// ValidateToken 校验签名、签发方与有效期，不区分令牌类型。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrTokenInvalid)
	}

	claims := &TokenClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.publicKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !token.Valid:
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateAccessToken 只接受访问令牌。
func (s *AuthService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	return s.validateType(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken 只接受带 jti 的刷新令牌。
func (s *AuthService) ValidateRefreshToken(tokenString string) (*TokenClaims, error) {
	claims, err := s.validateType(tokenString, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: refresh token without jti", ErrTokenInvalid)
	}
	return claims, nil
}

func (s *AuthService) validateType(tokenString, want string) (*TokenClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.TokenType, want)
	}
	return claims, nil
}

func (s *AuthService) sign(claims TokenClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// AccessTokenTTL 暴露访问令牌有效期。
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

// RefreshTokenTTL 暴露刷新令牌有效期。
func (s *AuthService) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}
