package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"shuttle/internal/domain"
)

const actorKey = "actor"

// Claims is the token payload: user_id, role and exp.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for userID. Login lives elsewhere; this is used by
// tooling and tests.
func IssueToken(secret []byte, userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, raw string) (domain.RequestContext, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return domain.RequestContext{}, err
	}
	if !token.Valid || claims.UserID <= 0 {
		return domain.RequestContext{}, errors.New("invalid token")
	}
	return domain.RequestContext{
		UserID: claims.UserID,
		Role:   strings.ToLower(strings.TrimSpace(claims.Role)),
	}, nil
}

// Identity attaches the bearer token's identity to the request. Requests
// without a token pass through anonymously; a bad token is rejected.
func Identity(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			abortAuth(c, http.StatusUnauthorized, "invalid Authorization header")
			return
		}
		actor, err := parseToken(secret, strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Actor(c); !ok {
			abortAuth(c, http.StatusUnauthorized, "authentication required")
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := Actor(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if !actor.IsAdmin() {
			abortAuth(c, http.StatusForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// Actor returns the authenticated caller, if any.
func Actor(c *gin.Context) (domain.RequestContext, bool) {
	if c == nil {
		return domain.RequestContext{}, false
	}
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.RequestContext{}, false
	}
	actor, ok := v.(domain.RequestContext)
	return actor, ok && actor.Authenticated()
}

func abortAuth(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"code":       strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		"request_id": GetRequestID(c),
	})
}
