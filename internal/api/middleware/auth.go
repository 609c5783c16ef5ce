package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/solcials-sync/pkg/response"
)

const SubjectKey = "subject"

// Claims 写接口令牌；Subject 只用于审计日志
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// JWTAuth 校验 Bearer 令牌；secret 为空时所有写请求都被拒绝
func JWTAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(c *gin.Context) {
		if secret == "" {
			response.Unauthorized(c, "write endpoints disabled")
			return
		}
		token := bearerFromHeader(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		var claims Claims
		parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !parsed.Valid {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
