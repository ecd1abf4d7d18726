package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/infrastructure/auth"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
)

const (
	// JWTClaimsKey holds the verified *auth.Claims on the gin context.
	JWTClaimsKey  = "jwt_claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenVerifier validates operator bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig configures JWTAuth.
type JWTMiddlewareConfig struct {
	Verifier TokenVerifier
	Logger   *zap.Logger
}

// JWTAuth admits requests carrying a valid operator bearer token and stores
// its claims under JWTClaimsKey.
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		token, reason := bearerToken(c.GetHeader(AuthHeaderKey))
		if reason != "" {
			rejectToken(c, log, auth.ErrInvalidToken, reason)
			return
		}
		claims, err := cfg.Verifier.Verify(token)
		if err != nil {
			rejectToken(c, log, err, "token rejected")
			return
		}
		c.Set(JWTClaimsKey, claims)
		log.Debug("Operator authenticated", zap.String("subject", claims.Subject), zap.Strings("roles", claims.Roles))
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively. reason is empty on success.
func bearerToken(header string) (token, reason string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, strings.TrimSpace(BearerPrefix)) {
		return "", "not a bearer token"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

// rejectToken answers 401. The reason goes to the security log only.
func rejectToken(c *gin.Context, log *zap.Logger, err error, reason string) {
	logger.Security(log, "Operator authentication failed",
		zap.Error(err),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path),
		zap.String("client_ip", c.ClientIP()),
	)

	code, msg := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, msg = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrTokenNotYetValid):
		code, msg = dto.ErrCodeTokenInvalid, "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, msg, GetRequestID(c)))
}

// RequireRole answers 403 unless the authenticated operator holds role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := GetJWTClaims(c); claims != nil && claims.HasRole(role) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden,
			dto.NewErrorResponse(dto.ErrCodeForbidden, "Missing role "+role, GetRequestID(c)))
	}
}

// GetJWTClaims returns the claims stored by JWTAuth, or nil.
func GetJWTClaims(c *gin.Context) *auth.Claims {
	claims, _ := c.Value(JWTClaimsKey).(*auth.Claims)
	return claims
}
