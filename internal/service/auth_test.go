package service

import (
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"testing"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/auth"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
)

// memAuthStore is an in-memory auth.Store.
type memAuthStore struct {
	byToken map[string]*auth.Session
	byEmail map[string]*auth.Session
}

func newMemAuthStore() *memAuthStore {
	return &memAuthStore{byToken: map[string]*auth.Session{}, byEmail: map[string]*auth.Session{}}
}

func (m *memAuthStore) Create(ctx context.Context, s *auth.Session) error {
	cp := *s
	m.byToken[s.Token] = &cp
	m.byEmail[s.Email] = &cp
	return nil
}

func (m *memAuthStore) GetByToken(ctx context.Context, token string) (*auth.Session, error) {
	if s, ok := m.byToken[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, auth.ErrSessionNotFound
}

func (m *memAuthStore) GetByEmail(ctx context.Context, email string) (*auth.Session, error) {
	if s, ok := m.byEmail[email]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, auth.ErrSessionNotFound
}

func (m *memAuthStore) UpdateProfile(ctx context.Context, email, name, picture string) error {
	s, ok := m.byEmail[email]
	if !ok {
		return auth.ErrSessionNotFound
	}
	s.Name, s.Picture = name, picture
	return nil
}

func (m *memAuthStore) DeleteByToken(ctx context.Context, token string) error {
	if s, ok := m.byToken[token]; ok {
		delete(m.byEmail, s.Email)
		delete(m.byToken, token)
	}
	return nil
}

type staffDir map[string]*identity.Staff

func (d staffDir) GetStaff(ctx context.Context, email string) (*identity.Staff, error) {
	if s, ok := d[email]; ok {
		return s, nil
	}
	return nil, acl.ErrStaffNotFound
}

func testAuthService(store auth.Store) *AuthService {
	engine := acl.NewEngine(
		&acl.Config{DefaultPolicy: acl.PolicyDeny},
		staffDir{
			"a@x.com": {Email: "a@x.com", Active: true, ACLs: []string{"DB_VIEW"}},
			"d@x.com": {Email: "d@x.com", Active: false},
		},
	)
	return NewAuthService(store, engine, nil)
}

func encodeTestProfile(t *testing.T, body string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(body))
}

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestLoginCreatesSession(t *testing.T) {
	store := newMemAuthStore()
	svc := testAuthService(store)

	session, err := svc.Login(context.Background(),
		encodeTestProfile(t, `{"email": "A@X.com", "name": "Aisha", "picture": "p.png"}`))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Email != "a@x.com" || session.UserID != "a@x.com" {
		t.Errorf("session identity = %q/%q, want canonical email", session.Email, session.UserID)
	}
	if !hexToken.MatchString(session.Token) {
		t.Errorf("token %q is not 64 hex chars", session.Token)
	}
	if session.Name != "Aisha" {
		t.Errorf("name = %q", session.Name)
	}
}

func TestReloginKeepsToken(t *testing.T) {
	store := newMemAuthStore()
	svc := testAuthService(store)
	ctx := context.Background()

	first, err := svc.Login(ctx, encodeTestProfile(t, `{"email": "a@x.com", "name": "Aisha"}`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Login(ctx, encodeTestProfile(t, `{"email": "a@x.com", "name": "Aisha Khan", "picture": "new.png"}`))
	if err != nil {
		t.Fatal(err)
	}

	if second.Token != first.Token {
		t.Error("re-login rotated the token")
	}
	if second.Name != "Aisha Khan" || second.Picture != "new.png" {
		t.Errorf("profile not refreshed: %+v", second)
	}

	// The stored session reflects the refresh.
	stored, err := store.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "Aisha Khan" {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestLoginDeniesNonStaff(t *testing.T) {
	svc := testAuthService(newMemAuthStore())

	_, err := svc.Login(context.Background(), encodeTestProfile(t, `{"email": "x@other.com"}`))
	if !errors.Is(err, auth.ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
}

func TestLoginDeniesInactiveStaff(t *testing.T) {
	svc := testAuthService(newMemAuthStore())

	_, err := svc.Login(context.Background(), encodeTestProfile(t, `{"email": "d@x.com"}`))
	if !errors.Is(err, auth.ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
}

func TestLoginRejectsBadProfiles(t *testing.T) {
	svc := testAuthService(newMemAuthStore())
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"missing email", base64.StdEncoding.EncodeToString([]byte(`{"name": "x"}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Login(ctx, tt.payload); !errors.Is(err, auth.ErrInvalidProfile) {
				t.Errorf("err = %v, want ErrInvalidProfile", err)
			}
		})
	}
}

func TestValidateAndLogout(t *testing.T) {
	store := newMemAuthStore()
	svc := testAuthService(store)
	ctx := context.Background()

	session, err := svc.Login(ctx, encodeTestProfile(t, `{"email": "a@x.com"}`))
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Validate(ctx, session.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Email != "a@x.com" {
		t.Errorf("validated email = %q", got.Email)
	}

	if _, err := svc.Validate(ctx, "bogus"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("bogus token err = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.Validate(ctx, ""); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("empty token err = %v, want ErrInvalidToken", err)
	}

	if err := svc.Logout(ctx, session.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Validate(ctx, session.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("after logout err = %v, want ErrInvalidToken", err)
	}
	// Logout is idempotent.
	if err := svc.Logout(ctx, session.Token); err != nil {
		t.Errorf("repeat Logout: %v", err)
	}
}
