package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"workshop_booking/domain/booking"
)

const actorKey = "actor"

// Claims identify the caller. Sub is the customer or workshop id.
type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func CreateAccessToken(secret []byte, sub, role, email string, ttl time.Duration) (string, error) {
	claims := Claims{
		Sub:   sub,
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseValidate(secret []byte, tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

func actorFromClaims(c *Claims) (booking.Actor, bool) {
	switch booking.Role(c.Role) {
	case booking.RoleCustomer, booking.RoleWorkshop:
		if c.Sub == "" {
			return booking.Actor{}, false
		}
		return booking.Actor{Role: booking.Role(c.Role), ID: c.Sub}, true
	case booking.RolePlatform:
		return booking.Platform(), true
	}
	return booking.Actor{}, false
}

// JWTAuth resolves the bearer token to a booking actor.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthorized"})
			return
		}
		claims, err := ParseValidate(secret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}
		actor, ok := actorFromClaims(claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown role", "code": "unauthorized"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func RequireRole(roles ...booking.Role) gin.HandlerFunc {
	allowed := map[booking.Role]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := allowed[actor(c).Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not allowed", "code": "forbidden"})
			return
		}
		c.Next()
	}
}

func actor(c *gin.Context) booking.Actor {
	v, _ := c.Get(actorKey)
	a, _ := v.(booking.Actor)
	return a
}
