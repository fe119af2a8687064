package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
)

const principalKey = "knowledge_principal"

// Principal identifies the caller of a request.
type Principal struct {
	UserID   string
	TenantID string
}

// Validator validates JWTs using JWKS and extracts the caller's user and tenant.
type Validator struct {
	cfg          *config.Config
	log          zerolog.Logger
	keyFunc      jwt.Keyfunc
	validMethods []string
}

// NewValidator initializes JWKS fetching when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	logger := log.With().Str("component", "auth").Logger()
	if !cfg.AuthEnabled {
		logger.Warn().Msg("authentication disabled; caller identity is read from development headers")
		return &Validator{cfg: cfg, log: logger}, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error().Err(err).Msg("jwks refresh error")
		},
	}
	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, options)
	if err != nil {
		return nil, err
	}
	return NewValidatorWithKeyfunc(cfg, jwks.Keyfunc, []string{"RS256", "RS384", "RS512"}, log), nil
}

// NewValidatorWithKeyfunc builds a validator around an existing key function.
func NewValidatorWithKeyfunc(cfg *config.Config, keyFunc jwt.Keyfunc, validMethods []string, log zerolog.Logger) *Validator {
	return &Validator{
		cfg:          cfg,
		log:          log.With().Str("component", "auth").Logger(),
		keyFunc:      keyFunc,
		validMethods: validMethods,
	}
}

// Middleware resolves the caller. With auth enabled the bearer token must be valid;
// otherwise the development headers are trusted.
func (v *Validator) Middleware() gin.HandlerFunc {
	if !v.cfg.AuthEnabled {
		return func(c *gin.Context) {
			c.Set(principalKey, Principal{
				UserID:   strings.TrimSpace(c.GetHeader(v.cfg.DevUserHeader)),
				TenantID: strings.TrimSpace(c.GetHeader(v.cfg.DevTenantHeader)),
			})
			c.Next()
		}
	}

	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods(v.validMethods)}
		if issuer := strings.TrimSpace(v.cfg.AuthIssuer); issuer != "" {
			opts = append(opts, jwt.WithIssuer(issuer))
		}
		if audience := strings.TrimSpace(v.cfg.AuthAudience); audience != "" {
			opts = append(opts, jwt.WithAudience(audience))
		}

		token, err := jwt.Parse(tokenString, v.keyFunc, opts...)
		if err != nil || !token.Valid {
			v.log.Debug().Err(err).Msg("rejected token")
			abortUnauthorized(c, "invalid token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortUnauthorized(c, "invalid token claims")
			return
		}

		userID, _ := claims["sub"].(string)
		tenantID, _ := claims[v.cfg.TenantClaim].(string)
		c.Set(principalKey, Principal{UserID: userID, TenantID: tenantID})
		c.Next()
	}
}

// Ready indicates if the validator is prepared.
func (v *Validator) Ready() bool {
	if v == nil || !v.cfg.AuthEnabled {
		return true
	}
	return v.keyFunc != nil
}

// PrincipalFrom returns the caller resolved by the middleware. ok is false when the
// user or tenant is unknown.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return Principal{}, false
	}
	p, _ := value.(Principal)
	return p, p.UserID != "" && p.TenantID != ""
}

// SetPrincipal stores the caller on the request context.
func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(principalKey, p)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
