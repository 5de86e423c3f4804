package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleUser is the default role of exchange customers.
	RoleUser = "user"
	// RoleAdmin grants access to settlement and request administration.
	RoleAdmin = "admin"

	callerKey = "caller"
)

// Caller identifies the authenticated principal of a request.
type Caller struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Claims are the access token claims issued by the external identity service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth returns a middleware that validates HS256 bearer tokens and stores
// the resulting Caller in the request locals.
func JWTAuth(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		var claims Claims
		if _, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if claims.Subject == "" {
			return fiber.NewError(http.StatusUnauthorized, "token has no subject")
		}
		role := claims.Role
		if role == "" {
			role = RoleUser
		}

		c.Locals(callerKey, Caller{UserID: claims.Subject, Role: role})
		return c.Next()
	}
}

// RequireRole rejects callers that do not hold role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := CallerFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
		}
		if caller.Role != role {
			return fiber.NewError(http.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
}

// CallerFrom returns the caller stored by JWTAuth.
func CallerFrom(c *fiber.Ctx) (Caller, bool) {
	caller, ok := c.Locals(callerKey).(Caller)
	return caller, ok
}

// MustCaller returns the caller or a 401 error for handlers mounted behind JWTAuth.
func MustCaller(c *fiber.Ctx) (Caller, error) {
	caller, ok := CallerFrom(c)
	if !ok || caller.UserID == "" {
		return Caller{}, fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	return caller, nil
}

// SetCaller stores caller on the request, for gateways that authenticate upstream.
func SetCaller(c *fiber.Ctx, caller Caller) {
	c.Locals(callerKey, caller)
}
