package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chyrp-api/config"
	"chyrp-api/repositories"
)

func newAuthService(t *testing.T, cfg config.AuthConfig) *AuthService {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	cfg.BcryptCost = bcrypt.MinCost
	users := repositories.NewUserRepository(newTestDB(t))
	captcha := NewCaptchaService(NewMemoryCaptchaStore(), time.Minute)
	return NewAuthService(users, captcha, cfg, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, config.AuthConfig{})

	user, err := svc.Register(ctx, RegisterInput{Username: " alice ", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	token, err := svc.Login(ctx, LoginInput{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)

	id, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, config.AuthConfig{})

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "pw"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "not-an-email", Password: "pw"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "email", verr.Field)
}

func TestRegisterConflict(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, config.AuthConfig{})

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "alice@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegisterRequiresCaptchaWhenEnabled(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, config.AuthConfig{RequireCaptcha: true})

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "captcha", verr.Field)

	challenge, err := svc.captcha.New(ctx)
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{
		Username:      "alice",
		Email:         "alice@example.com",
		Password:      "pw",
		CaptchaID:     challenge.CaptchaID,
		CaptchaAnswer: solve(t, challenge.Question),
	})
	assert.NoError(t, err)
}

func TestLoginFailuresAreUnauthorized(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, config.AuthConfig{})
	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "right"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Login(ctx, LoginInput{Username: "nobody", Password: "right"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestParseToken(t *testing.T) {
	svc := newAuthService(t, config.AuthConfig{TokenTTL: time.Hour})
	valid, err := svc.IssueToken(7)
	require.NoError(t, err)

	other := newAuthService(t, config.AuthConfig{JWTSecret: "someone-else"})
	forged, err := other.IssueToken(7)
	require.NoError(t, err)

	expiredSvc := newAuthService(t, config.AuthConfig{TokenTTL: time.Hour})
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredSvc.IssueToken(7)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "7"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantID  uint
		wantErr error
	}{
		{name: "valid", token: valid, wantID: 7},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrMalformedToken},
		{name: "wrong signature", token: forged, wantErr: ErrUnauthorized},
		{name: "expired", token: expired, wantErr: ErrUnauthorized},
		{name: "missing exp", token: noExpiry, wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.ParseToken(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
