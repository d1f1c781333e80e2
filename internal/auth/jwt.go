package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims issued by the realm server.
type Claims struct {
	ClientID uint64 `json:"client_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Token validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Authenticator issues and validates JWT tokens and checks credentials
// against a UserRepository. One instance is shared between the REST API
// and the game handshake, so both accept the same tokens.
type Authenticator struct {
	userRepo    UserRepository
	jwtSecret   []byte
	tokenExpiry time.Duration
}

// NewAuthenticator creates a new authenticator. When secret is empty a
// random one is generated: tokens then survive only until restart.
func NewAuthenticator(repo UserRepository, secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	if len(secret) < 32 {
		return nil, errors.New("JWT secret must be at least 32 bytes")
	}

	return &Authenticator{
		userRepo:    repo,
		jwtSecret:   secret,
		tokenExpiry: 24 * time.Hour,
	}, nil
}

// Login validates credentials and issues a fresh token.
// Returns the user, the signed token and its unix expiry time.
func (a *Authenticator) Login(username, password string) (*User, string, int64, error) {
	user, err := a.userRepo.ValidateCredentials(username, password)
	if err != nil {
		return nil, "", 0, ErrUserNotFound
	}

	token, expiresAt, err := a.GenerateToken(user)
	if err != nil {
		return nil, "", 0, err
	}
	return user, token, expiresAt, nil
}

// GenerateToken signs a new JWT for the given user.
func (a *Authenticator) GenerateToken(user *User) (string, int64, error) {
	expiresAt := time.Now().Add(a.tokenExpiry)

	claims := &Claims{
		ClientID: user.ID,
		Username: user.Username,
		Role:     user.GetRole(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Subject:   user.Username,
			Issuer:    "realm-server",
			ID:        fmt.Sprintf("user_%d_%d", user.ID, time.Now().UnixNano()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signed, expiresAt.Unix(), nil
}

// ValidateToken parses and verifies a token string.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// UserFromToken validates the token and loads the account it refers to.
// Used by the game handshake: a stale token for a deleted account fails here.
func (a *Authenticator) UserFromToken(tokenString string) (*User, error) {
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := a.userRepo.GetUserByID(claims.ClientID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GenerateSecureSecret generates a new secure secret key for configs.
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeSecret decodes a base64 secret from configuration.
func DecodeSecret(secret string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT secret: %w", err)
	}
	return decoded, nil
}
