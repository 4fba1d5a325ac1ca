package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/liliang-cn/claimdesk/internal/domain"
)

const callerKey = "claimdesk.caller"

// Identity headers set by a trusted gateway
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// AuthConfig selects how callers are identified
type AuthConfig struct {
	JWTSecret    string
	TrustHeaders bool
}

// TokenClaims are the claims of a ClaimDesk bearer token
type TokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth resolves the caller of every request and rejects anonymous ones.
// A bearer token (or the token query parameter, for sockets) is verified
// when a secret is configured; gateway headers are accepted when trusted.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := resolve(c, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func resolve(c *gin.Context, cfg AuthConfig) (domain.Caller, error) {
	token := c.Query("token")
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if cfg.JWTSecret != "" && token != "" {
		return ParseToken(token, cfg.JWTSecret)
	}

	if cfg.TrustHeaders {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
			if role == "" {
				role = domain.RoleUser
			}
			if !domain.ValidRole(role) {
				return domain.Caller{}, errors.New("unknown role")
			}
			return domain.Caller{UserID: id, Role: role}, nil
		}
	}

	return domain.Caller{}, domain.ErrUnauthorized
}

// ParseToken verifies an HS256 token and returns its caller
func ParseToken(token, secret string) (domain.Caller, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Caller{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.Caller{}, errors.New("token has no subject")
	}
	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return domain.Caller{}, errors.New("unknown role")
	}
	return domain.Caller{UserID: claims.Subject, Role: role}, nil
}

// SignToken issues an HS256 token for a caller
func SignToken(caller domain.Caller, secret string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = caller.UserID
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{Role: caller.Role, RegisteredClaims: claims})
	return tok.SignedString([]byte(secret))
}

// Caller returns the identity resolved by Auth
func Caller(c *gin.Context) domain.Caller {
	if v, ok := c.Get(callerKey); ok {
		return v.(domain.Caller)
	}
	return domain.Caller{}
}

// RequireRole rejects callers whose role is not listed
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := Caller(c).Role
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": domain.ErrForbidden.Error()})
	}
}
