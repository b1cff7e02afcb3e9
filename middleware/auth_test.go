package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/services"
	"github.com/snaplink-labs/snaplink_api/shared"
)

type stubVerifier struct {
	identity *services.Identity
}

func (s *stubVerifier) Verify(_ context.Context, credential string) (*services.Identity, error) {
	if credential != "good-token" {
		return nil, errors.New("invalid token")
	}
	return s.identity, nil
}

type stubAccounts struct {
	calls    int
	lastSeen *services.Identity
	account  *model.Account
}

func (s *stubAccounts) EnsureFromIdentity(_ context.Context, identity *services.Identity) (*model.Account, error) {
	s.calls++
	s.lastSeen = identity
	return s.account, nil
}

func newTestAuth(accounts *stubAccounts) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSvc: &services.JWTService{},
		verifier: &stubVerifier{identity: &services.Identity{
			SubjectID:     "subject-1",
			Email:         "first@timer.dev",
			EmailVerified: true,
		}},
		accounts: accounts,
	}
}

// newAuthApp mounts the handler chain and captures what the downstream
// handler sees in locals.
func newAuthApp(mw fiber.Handler, seen **model.Account) *fiber.App {
	app := fiber.New()
	app.Get("/", mw, func(c *fiber.Ctx) error {
		if account, ok := c.Locals(AccountKey).(*model.Account); ok {
			*seen = account
		}
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequiredAuth(t *testing.T) {
	t.Run("FirstSeenSubjectIsProvisioned", func(t *testing.T) {
		accounts := &stubAccounts{account: &model.Account{ID: "subject-1", Tier: shared.TierFree}}
		mw := newTestAuth(accounts)

		var seen *model.Account
		app := newAuthApp(mw.RequiredAuth(), &seen)

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if accounts.calls != 1 {
			t.Fatalf("Expected one provisioning call, got %d", accounts.calls)
		}
		if accounts.lastSeen == nil || accounts.lastSeen.SubjectID != "subject-1" {
			t.Error("Verified identity should reach the account provider")
		}
		if seen == nil || seen.ID != "subject-1" {
			t.Error("Provisioned account should be available downstream")
		}
	})

	t.Run("MissingHeaderRejected", func(t *testing.T) {
		accounts := &stubAccounts{}
		mw := newTestAuth(accounts)

		var seen *model.Account
		app := newAuthApp(mw.RequiredAuth(), &seen)

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", resp.StatusCode)
		}
		if accounts.calls != 0 {
			t.Error("Rejected request must not provision anything")
		}
	})

	t.Run("InvalidTokenRejected", func(t *testing.T) {
		accounts := &stubAccounts{}
		mw := newTestAuth(accounts)

		var seen *model.Account
		app := newAuthApp(mw.RequiredAuth(), &seen)

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer forged")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", resp.StatusCode)
		}
		if accounts.calls != 0 {
			t.Error("Rejected request must not provision anything")
		}
	})
}

func TestOptionalAuth(t *testing.T) {
	t.Run("NoHeaderStaysAnonymous", func(t *testing.T) {
		accounts := &stubAccounts{}
		mw := newTestAuth(accounts)

		var seen *model.Account
		app := newAuthApp(mw.OptionalAuth(), &seen)

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if seen != nil {
			t.Error("Anonymous request must not carry an account")
		}
		if accounts.calls != 0 {
			t.Error("Anonymous request must not provision anything")
		}
	})

	t.Run("ValidTokenProvisions", func(t *testing.T) {
		accounts := &stubAccounts{account: &model.Account{ID: "subject-1", Tier: shared.TierFree}}
		mw := newTestAuth(accounts)

		var seen *model.Account
		app := newAuthApp(mw.OptionalAuth(), &seen)

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if accounts.calls != 1 || seen == nil {
			t.Error("Valid token should resolve to a provisioned account")
		}
	})

	t.Run("InvalidTokenRejected", func(t *testing.T) {
		accounts := &stubAccounts{}
		mw := newTestAuth(accounts)

		var seen *model.Account
		app := newAuthApp(mw.OptionalAuth(), &seen)

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer forged")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", resp.StatusCode)
		}
	})
}
