package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	// InstitutionalAccess distinguishes local users from federated partners.
	InstitutionalAccess bool   `json:"leaf_institutional"`
	Identified          bool   `json:"leaf_identified"`
	SessionNonce        string `json:"leaf_nonce"`
}

type JWTConfig struct {
	Issuer string
	// SigningKey is the HMAC secret shared with the identity provider.
	SigningKey []byte
}

// Middleware parses the bearer token and stores a UserContext on the
// request context. Requests without a valid token are rejected.
func Middleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}

			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			user, err := userFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			req := c.Request()
			c.SetRequest(req.WithContext(WithUser(req.Context(), user)))
			return next(c)
		}
	}
}

// DevMiddleware injects a fixed institutional admin user. Development only.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := &UserContext{
				Subject:         "dev",
				Issuer:          "localhost",
				IsInstitutional: true,
				Identified:      true,
				SessionNonce:    uuid.New(),
			}
			req := c.Request()
			c.SetRequest(req.WithContext(WithUser(req.Context(), user)))
			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("malformed Authorization header")
	}
	return parts[1], nil
}

func userFromClaims(claims *Claims) (*UserContext, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	nonce, err := uuid.Parse(claims.SessionNonce)
	if err != nil {
		return nil, fmt.Errorf("token has no session nonce")
	}
	return &UserContext{
		Subject:         claims.Subject,
		Issuer:          claims.Issuer,
		IsInstitutional: claims.InstitutionalAccess,
		Identified:      claims.Identified,
		SessionNonce:    nonce,
	}, nil
}
