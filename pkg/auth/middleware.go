package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/replweb/pkg/response"
)

// Middleware 管理路由的 JWT 校验；claims 写入 gin context
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			response.Unauthorized(c, "missing token")
			c.Abort()
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

// LoginLimiter 登录尝试限流（进程级单桶即可，登录不是热路径）
func LoginLimiter(r float64, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rate.Limit(r), burst)
	return func(c *gin.Context) {
		if !lim.Allow() {
			response.Unauthorized(c, "too many login attempts")
			c.Abort()
			return
		}
		c.Next()
	}
}
