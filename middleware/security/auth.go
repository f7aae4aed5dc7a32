package security

import (
	"net/http"
	"strings"

	errs "FProject/tools/errs"
	jwts "FProject/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续 handler 统一用它读取鉴权主体
const (
	CtxUserIDKey = "authUserId" // string
)

type Options struct {
	Jwt jwts.Options

	HeaderToken               string // 默认 "authorization"
	CookieToken               string // 默认 "access_token"
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions(jwt jwts.Options) *Options {
	return &Options{
		Jwt:                       jwt,
		HeaderToken:               "authorization",
		CookieToken:               "access_token",
		EnableAuthorizationBearer: true,
	}
}

// Middleware HTTP 面的鉴权：cookie access_token 或 Authorization: Bearer。
// 校验通过后把 userID 写进 gin context。
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if ck, err := c.Request.Cookie(opts.CookieToken); err == nil && ck.Value != "" {
			token = ck.Value
		}
		if token == "" {
			token = strings.TrimSpace(c.GetHeader(opts.HeaderToken))
		}
		// 兼容 Authorization: Bearer xxx
		if opts.EnableAuthorizationBearer && strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenMissing)
			return
		}

		userID, err := jwts.VerifySubject(opts.Jwt, token)
		if err != nil {
			e := errs.ErrTokenInvalid.WithDetail(err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, e)
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

// UserID 从 gin context 取鉴权主体
func UserID(c *gin.Context) string {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
