package middleware

import (
	stdContext "context"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/services"
	"github.com/snaplink-labs/snaplink_api/shared"
)

// accountProvider provisions an account row for a verified identity,
// creating one the first time the subject is seen.
type accountProvider interface {
	EnsureFromIdentity(ctx stdContext.Context, identity *services.Identity) (*model.Account, error)
}

// AuthMiddleware resolves the bearer token to an account. The anonymous and
// authenticated paths stay structurally distinct: OptionalAuth never invents
// a placeholder identity for unauthenticated requests.
type AuthMiddleware struct {
	context.DefaultService

	jwtSvc   *services.JWTService
	verifier services.IdentityVerifier
	accounts accountProvider
}

const AUTH_MIDDLEWARE_SVC = "auth"

// AccountKey is the fiber locals key holding *model.Account when a request
// is authenticated.
const AccountKey = "account"

func (svc AuthMiddleware) Id() string {
	return AUTH_MIDDLEWARE_SVC
}

func (svc *AuthMiddleware) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthMiddleware) Start() error {
	jwtSvc := svc.Service(services.JWT_SVC).(*services.JWTService)
	svc.jwtSvc = jwtSvc
	svc.verifier = jwtSvc
	svc.accounts = svc.Service(services.ACCOUNT_SVC).(*services.AccountService)
	return nil
}

// RequiredAuth rejects requests without a valid token.
func (svc *AuthMiddleware) RequiredAuth() fiber.Handler {
	return svc.authenticate
}

// OptionalAuth injects the account when a valid token is present and leaves
// the request anonymous otherwise. An invalid token is still rejected; a
// silent downgrade to anonymous would mask client bugs.
func (svc *AuthMiddleware) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			return c.Next()
		}
		return svc.authenticate(c)
	}
}

// authenticate verifies the credential and resolves its account, creating
// the account on first sight of the subject.
func (svc *AuthMiddleware) authenticate(c *fiber.Ctx) error {
	token, err := svc.jwtSvc.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return shared.ResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
	}

	identity, err := svc.verifier.Verify(c.UserContext(), token)
	if err != nil || identity == nil {
		return shared.ResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", "Invalid JWT token")
	}

	account, err := svc.accounts.EnsureFromIdentity(c.UserContext(), identity)
	if err != nil {
		return err
	}

	c.Locals(shared.UserID, identity.SubjectID)
	c.Locals(AccountKey, account)
	return c.Next()
}
