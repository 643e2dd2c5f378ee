package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const tokenIssuer = "cantina"

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateAccount(ctx context.Context, user domain.UserAccount) (*domain.Account, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	logger   *zap.Logger
	now      func() time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore, logger *zap.Logger) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		logger:   logger.Named("auth"),
		now:      time.Now,
	}
}

// Register creates a customer account and signs it in.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 {
		return domain.LoginResponse{}, fmt.Errorf("%w: username must be at least 3 characters", domain.ErrValidation)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.LoginResponse{}, fmt.Errorf("%w: username must not contain spaces", domain.ErrValidation)
	}
	if len(req.Password) < 6 {
		return domain.LoginResponse{}, fmt.Errorf("%w: password must be at least 6 characters", domain.ErrValidation)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("hash password: %w", err)
	}
	acct, err := a.users.CreateAccount(ctx, domain.UserAccount{
		Account: domain.Account{
			Username:             username,
			Role:                 domain.RoleCustomer,
			NotificationsEnabled: true,
			ThemePreference:      domain.DefaultTheme,
			CreatedAt:            a.now().UTC(),
		},
		PasswordHash: hash,
	})
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return a.issue(*acct)
}

// Login checks the password against the stored bcrypt hash. Accounts loaded
// with a plain-text password are upgraded to a hash on their first login.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByUsername(ctx, req.Username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	if isPasswordHash(user.PasswordHash) {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
	} else {
		if user.PasswordHash == "" || subtle.ConstantTimeCompare([]byte(user.PasswordHash), []byte(req.Password)) != 1 {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		if hash, err := HashPassword(req.Password); err == nil {
			if err := a.users.UpdateUserPassword(ctx, user.Username, hash); err != nil {
				a.logger.Warn("failed to upgrade legacy password", zap.String("username", user.Username), zap.Error(err))
			}
		}
	}

	return a.issue(user.Account)
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{AccountID: sub, Username: claims.Username, Role: claims.Role}, nil
}

func (a *AuthManager) issue(acct domain.Account) (domain.LoginResponse, error) {
	now := a.now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   acct.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Username: acct.Username,
		Role:     acct.Role,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acct.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		Account:     acct,
	}, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
