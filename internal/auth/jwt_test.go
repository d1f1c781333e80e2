package auth

import (
	"testing"
	"time"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *MemoryUserRepo) {
	t.Helper()

	repo, err := NewMemoryUserRepo()
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	a, err := NewAuthenticator(repo, nil)
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}
	return a, repo
}

func TestLogin_Success(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	user, token, expiresAt, err := a.Login("test", "test")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.Username != "test" || user.IsAdmin {
		t.Errorf("unexpected user: %+v", user)
	}
	if token == "" {
		t.Error("empty token")
	}
	if expiresAt <= time.Now().Unix() {
		t.Errorf("token already expired: %d", expiresAt)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	_, _, _, err := a.Login("test", "wrong")
	if err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	// Unknown username yields the same error: no account enumeration.
	_, _, _, err = a.Login("nobody", "test")
	if err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestValidateToken_RoundTrip(t *testing.T) {
	a, repo := newTestAuthenticator(t)

	admin, err := repo.GetUserByUsername("admin")
	if err != nil {
		t.Fatalf("admin not found: %v", err)
	}

	token, _, err := a.GenerateToken(admin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	if claims.ClientID != admin.ID {
		t.Errorf("client id: expected %d, got %d", admin.ID, claims.ClientID)
	}
	if claims.Role != "admin" {
		t.Errorf("role: expected admin, got %s", claims.Role)
	}
	if claims.Issuer != "realm-server" {
		t.Errorf("issuer: expected realm-server, got %s", claims.Issuer)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	if _, err := a.ValidateToken("not-a-token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := a.ValidateToken(""); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_ForeignSecret(t *testing.T) {
	a1, repo := newTestAuthenticator(t)

	// Second authenticator with a different random secret must reject
	// tokens issued by the first one.
	a2, err := NewAuthenticator(repo, nil)
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	user, _ := repo.GetUserByUsername("test")
	token, _, err := a1.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := a2.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	a, repo := newTestAuthenticator(t)
	a.tokenExpiry = -time.Minute // Already expired at issue time

	user, _ := repo.GetUserByUsername("test")
	token, _, err := a.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := a.ValidateToken(token); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestUserFromToken(t *testing.T) {
	a, repo := newTestAuthenticator(t)

	user, _ := repo.GetUserByUsername("test")
	token, _, err := a.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	loaded, err := a.UserFromToken(token)
	if err != nil {
		t.Fatalf("failed to load user from token: %v", err)
	}
	if loaded.ID != user.ID {
		t.Errorf("expected user %d, got %d", user.ID, loaded.ID)
	}

	// Token for an account that no longer exists.
	ghost := &User{ID: 9999, Username: "ghost"}
	ghostToken, _, err := a.GenerateToken(ghost)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := a.UserFromToken(ghostToken); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSecretRoundTrip(t *testing.T) {
	encoded := GenerateSecureSecret()

	decoded, err := DecodeSecret(encoded)
	if err != nil {
		t.Fatalf("failed to decode secret: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(decoded))
	}

	repo, _ := NewMemoryUserRepo()
	if _, err := NewAuthenticator(repo, decoded); err != nil {
		t.Errorf("decoded secret rejected: %v", err)
	}

	if _, err := NewAuthenticator(repo, []byte("short")); err == nil {
		t.Error("short secret accepted")
	}
}

func TestMemoryUserRepo_CreateAndLookup(t *testing.T) {
	_, repo := newTestAuthenticator(t)

	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	created, err := repo.CreateUser("Alice", hash, false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	// Lookup is case-insensitive.
	byName, err := repo.GetUserByUsername("alice")
	if err != nil || byName.ID != created.ID {
		t.Fatalf("case-insensitive lookup failed: %v", err)
	}

	byID, err := repo.GetUserByID(created.ID)
	if err != nil || byID.Username != "Alice" {
		t.Fatalf("lookup by id failed: %v", err)
	}

	if _, err := repo.CreateUser("ALICE", hash, false); err != ErrUserExists {
		t.Errorf("expected ErrUserExists, got %v", err)
	}

	if _, err := repo.ValidateCredentials("alice", "secret123"); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}
	if _, err := repo.ValidateCredentials("alice", "nope"); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
