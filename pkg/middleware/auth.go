package middleware

import (
	"errors"
	"strings"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	principalKey = "principal"
)

var ErrTokenInvalid = errors.New("token is invalid")

// Claims carries the account id in the subject and the account role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Principal struct {
	UserID snowflake.ID
	Role   string
}

func ParseToken(tokenString, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Auth verifies the bearer token. Token issuance lives outside this service.
func Auth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			c.Error(errutil.Unauthorized("missing bearer token", nil))
			c.Abort()
			return
		}

		claims, err := ParseToken(raw, cfg.Auth.Secret, cfg.Auth.Issuer)
		if err != nil {
			c.Error(errutil.Unauthorized("invalid token", err))
			c.Abort()
			return
		}

		userID, err := snowflake.ParseString(claims.Subject)
		if err != nil {
			c.Error(errutil.Unauthorized("invalid token subject", err))
			c.Abort()
			return
		}

		c.Set(principalKey, Principal{UserID: userID, Role: claims.Role})
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
