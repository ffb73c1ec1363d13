// File: /services/auth_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"chyrp-api/config"
	"chyrp-api/models"
	"chyrp-api/repositories"
	"chyrp-api/utils"
)

// ErrMalformedToken means the bearer value could not be parsed as a JWT at
// all, as opposed to a well-formed token that is expired or badly signed.
var ErrMalformedToken = errors.New("malformed token")

type RegisterInput struct {
	Username      string `json:"username" form:"username"`
	Email         string `json:"email" form:"email"`
	Password      string `json:"password" form:"password"`
	CaptchaID     string `json:"captcha_id" form:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer" form:"captcha_answer"`
}

type LoginInput struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type AuthService struct {
	users   *repositories.UserRepository
	captcha *CaptchaService
	cfg     config.AuthConfig
	log     *zap.Logger
	now     func() time.Time
}

// NewAuthService wires authentication. captcha may be nil when registration
// is not gated.
func NewAuthService(users *repositories.UserRepository, captcha *CaptchaService, cfg config.AuthConfig, log *zap.Logger) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &AuthService{users: users, captcha: captcha, cfg: cfg, log: log, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, invalid("", "Missing username, email, or password")
	}
	if !utils.IsValidEmail(in.Email) {
		return nil, invalid("email", "Invalid email address")
	}

	if s.cfg.RequireCaptcha && s.captcha != nil {
		ok, err := s.captcha.Verify(ctx, in.CaptchaID, in.CaptchaAnswer)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalid("captcha", "Invalid captcha")
		}
	}

	taken, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("username or email already exists: %w", ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: in.Username, Email: in.Email, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("username or email already exists: %w", ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login returns a signed access token. Unknown users and wrong passwords
// are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, error) {
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return "", invalid("", "Missing username or password")
	}

	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return "", fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}

	return s.IssueToken(user.ID)
}

func (s *AuthService) IssueToken(userID uint) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken returns the user id carried by a valid token. Tokens that are
// not JWTs at all yield ErrMalformedToken; expired or badly signed tokens
// yield ErrUnauthorized.
func (s *AuthService) ParseToken(raw string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return 0, ErrMalformedToken
		}
		return 0, fmt.Errorf("%v: %w", err, ErrUnauthorized)
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrMalformedToken
	}
	return uint(id), nil
}
