package service

import (
	"errors"
	"testing"
	"time"

	"profense_backend/internal/config"
	"profense_backend/internal/model"
	"profense_backend/internal/util"
)

type fakeUserStore struct {
	byEmail map[string]*model.User
	nextID  uint
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: make(map[string]*model.User)}
}

func (s *fakeUserStore) FindByEmail(email string) (*model.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, util.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) FindByID(id uint) (*model.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, util.ErrUserNotFound
}

func (s *fakeUserStore) Create(u *model.User) error {
	s.nextID++
	u.ID = s.nextID
	s.byEmail[u.Email] = u
	return nil
}

func (s *fakeUserStore) Save(u *model.User) error {
	s.byEmail[u.Email] = u
	return nil
}

func newAuthService(store *fakeUserStore) *AuthService {
	return NewAuthService(store, &config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour})
}

func TestRegisterAndLogin(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthService(store)

	reg, err := svc.Register(RegisterRequest{
		Name:     "Ada",
		Email:    "Ada@Example.com",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Token == "" {
		t.Error("no token issued on register")
	}
	if reg.User.Email != "ada@example.com" {
		t.Errorf("email = %q, want lowercased", reg.User.Email)
	}
	if reg.User.Role != model.Student {
		t.Errorf("role = %s, want default student", reg.User.Role)
	}
	if reg.User.Password == "correct horse" {
		t.Error("password stored in plain text")
	}

	login, err := svc.Login(LoginRequest{Email: "ADA@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Token == "" {
		t.Error("no token issued on login")
	}

	claims, err := util.ParseJWT(login.Token, "test-secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != reg.User.ID {
		t.Errorf("claims userId = %d, want %d", claims.UserID, reg.User.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthService(store)

	if _, err := svc.Register(RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(RegisterRequest{Name: "Other", Email: "ADA@example.com", Password: "different pass"})
	if !errors.Is(err, util.ErrEmailRegistered) {
		t.Errorf("err = %v, want ErrEmailRegistered", err)
	}
}

func TestRegisterAdminRejected(t *testing.T) {
	svc := newAuthService(newFakeUserStore())
	_, err := svc.Register(RegisterRequest{Name: "Eve", Email: "eve@example.com", Password: "password123", Role: "admin"})
	if !errors.Is(err, util.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestLoginRejections(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthService(store)

	if _, err := svc.Register(RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(LoginRequest{Email: "nobody@example.com", Password: "whatever"}); !errors.Is(err, util.ErrInvalidCredentials) {
		t.Errorf("unknown email: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(LoginRequest{Email: "ada@example.com", Password: "wrong"}); !errors.Is(err, util.ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}

	store.byEmail["ada@example.com"].Disabled = true
	if _, err := svc.Login(LoginRequest{Email: "ada@example.com", Password: "correct horse"}); !errors.Is(err, util.ErrPermissionDenied) {
		t.Errorf("disabled account: err = %v, want ErrPermissionDenied", err)
	}
}
