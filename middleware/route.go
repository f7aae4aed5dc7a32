package middleware

import (
	midsec "FProject/middleware/security"

	"github.com/gin-gonic/gin"
)

// RouteOpt 配置选项
type RouteOpt struct {
	IsAuth bool
	Auth   *midsec.Options // IsAuth=true 时必填
}

// POST 封装
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.POST(path, midsec.Middleware(opt.Auth), handler)
	} else {
		r.POST(path, handler)
	}
}

// GET 封装
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.GET(path, midsec.Middleware(opt.Auth), handler)
	} else {
		r.GET(path, handler)
	}
}
