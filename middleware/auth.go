package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DaryoAI/pkg/config"
	tokenstore "DaryoAI/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ContextAdminIDKey  = "current_admin_id"
	ContextJTIKey      = "current_jti"
	ContextTokenExpKey = "current_token_exp"

	AdminTokenTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked (logout)")
)

// AdminClaims is the part of an admin JWT the console cares about.
type AdminClaims struct {
	AdminID   uint
	JTI       string
	ExpiresAt time.Time
}

// IssueAdminToken signs an HS256 token with sub, exp and jti claims.
func IssueAdminToken(adminID uint, now time.Time) (string, AdminClaims, error) {
	claims := AdminClaims{
		AdminID:   adminID,
		JTI:       uuid.NewString(),
		ExpiresAt: now.Add(AdminTokenTTL),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(adminID), 10),
		"exp": claims.ExpiresAt.Unix(),
		"jti": claims.JTI,
	})
	signed, err := token.SignedString([]byte(config.JWTSecret))
	if err != nil {
		return "", AdminClaims{}, err
	}
	return signed, claims, nil
}

// ParseAdminToken validates signature, expiry, revocation and subject.
func ParseAdminToken(tokenStr string) (AdminClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// only accept HMAC signing
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return AdminClaims{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return AdminClaims{}, ErrInvalidToken
	}

	jti, _ := claims["jti"].(string)
	if tokenstore.IsRevoked(jti) {
		return AdminClaims{}, ErrTokenRevoked
	}

	var sub uint64
	switch v := claims["sub"].(type) {
	case string:
		sub, err = strconv.ParseUint(v, 10, 64)
	case float64:
		// jwt lib may parse numeric as float64
		sub = uint64(v)
	default:
		err = ErrInvalidToken
	}
	if err != nil || sub == 0 {
		return AdminClaims{}, ErrInvalidToken
	}

	out := AdminClaims{AdminID: uint(sub), JTI: jti}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// AuthMiddleware guards the admin console with a bearer JWT.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization header"})
			return
		}

		claims, err := ParseAdminToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": err.Error()})
			return
		}

		c.Set(ContextAdminIDKey, claims.AdminID)
		c.Set(ContextJTIKey, claims.JTI)
		c.Set(ContextTokenExpKey, claims.ExpiresAt)
		c.Next()
	}
}

// CurrentAdminID returns the admin id set by AuthMiddleware, or 0.
func CurrentAdminID(c *gin.Context) uint {
	v, _ := c.Get(ContextAdminIDKey)
	id, _ := v.(uint)
	return id
}
