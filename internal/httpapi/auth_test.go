package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oilmill/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

// capturingNotifier records the last OTP handed to it instead of sending it.
type capturingNotifier struct {
	mu  sync.Mutex
	otp string
}

func (n *capturingNotifier) SendOTP(_ string, _ string, otp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otp = otp
	return nil
}

func (n *capturingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.otp
}

func adminStoreStub() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Email:     "admin@oilmill.local",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := adminStoreStub()

	manager := NewAuthManager("test-secret", time.Hour, store, nil, zerolog.Nop())
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminStoreStub(), nil, zerolog.Nop())

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}

	if _, err := manager.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestTokenFromDifferentSecretRejected(t *testing.T) {
	managerA := NewAuthManager("secret-a", time.Hour, adminStoreStub(), nil, zerolog.Nop())
	managerB := NewAuthManager("secret-b", time.Hour, adminStoreStub(), nil, zerolog.Nop())

	resp, err := managerA.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := managerB.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected cross-secret token to be rejected")
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	store := adminStoreStub()
	manager := NewAuthManager("test-secret", time.Hour, store, nil, zerolog.Nop())

	cashier, err := manager.CreateCashier(domain.CashierCreateRequest{
		Username: "newcashier",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "newcashier" {
		t.Fatalf("unexpected username %s", cashier.Username)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "newcashier" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected cashier to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected cashier password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "newcashier", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}
}

func TestCreateCashierValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminStoreStub(), nil, zerolog.Nop())

	if _, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "pass1234"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "till one", Password: "pass1234"}); err == nil {
		t.Fatalf("expected username with spaces to be rejected")
	}
	if _, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "tillone", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "admin", Password: "pass1234"}); err == nil {
		t.Fatalf("expected existing username to be rejected")
	}
}

func TestOTPResetFlow(t *testing.T) {
	store := adminStoreStub()
	notifier := &capturingNotifier{}
	manager := NewAuthManager("test-secret", time.Hour, store, notifier, zerolog.Nop())

	if err := manager.RequestPasswordReset(domain.OTPRequest{Username: "admin"}); err != nil {
		t.Fatalf("request reset failed: %v", err)
	}
	otp := notifier.last()
	if len(otp) != otpLength {
		t.Fatalf("expected %d-digit otp, got %q", otpLength, otp)
	}

	// A wrong OTP must not reset the password.
	err := manager.VerifyOTPAndReset(domain.OTPResetRequest{
		Username:    "admin",
		OTP:         "000000x",
		NewPassword: "brandnewpass",
	})
	if err == nil {
		t.Fatalf("expected wrong otp to be rejected")
	}

	if err := manager.VerifyOTPAndReset(domain.OTPResetRequest{
		Username:    "admin",
		OTP:         otp,
		NewPassword: "brandnewpass",
	}); err != nil {
		t.Fatalf("reset with valid otp failed: %v", err)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"}); err == nil {
		t.Fatalf("expected old password to stop working")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "brandnewpass"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// The OTP is single-use.
	if err := manager.VerifyOTPAndReset(domain.OTPResetRequest{
		Username:    "admin",
		OTP:         otp,
		NewPassword: "anotherpass",
	}); err == nil {
		t.Fatalf("expected consumed otp to be rejected")
	}
}

func TestOTPRequestSilentForUnknownAccount(t *testing.T) {
	notifier := &capturingNotifier{}
	manager := NewAuthManager("test-secret", time.Hour, adminStoreStub(), notifier, zerolog.Nop())

	if err := manager.RequestPasswordReset(domain.OTPRequest{Username: "nobody"}); err != nil {
		t.Fatalf("expected silent success for unknown account, got %v", err)
	}
	if notifier.last() != "" {
		t.Fatalf("expected no otp issued for unknown account")
	}
}
