package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/solcials-sync/docs"
	"github.com/d60-Lab/solcials-sync/internal/api/handler"
	"github.com/d60-Lab/solcials-sync/internal/api/middleware"
)

const StreamPath = "/api/v1/stream"

type RouterConfig struct {
	ServiceName string
	// JWTSecret 为空时写接口返回 401
	JWTSecret string
	// Swagger 是否挂载 /swagger 文档
	Swagger bool
}

// NewRouter 注册所有路由
// @title Solcials Sync API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func NewRouter(cfg RouterConfig, h *handler.Handler) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		otelgin.Middleware(cfg.ServiceName),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{StreamPath})),
	)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if cfg.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/posts", h.ListPosts)
		v1.GET("/posts/:address", h.GetPost)
		v1.GET("/posts/:address/likes", h.ListLikes)
		v1.GET("/users/:owner/profile", h.GetProfile)
		v1.GET("/users/:owner/posts", h.ListUserPosts)
		v1.GET("/relations/:user_id/following", h.ListFollowing)
		v1.GET("/relations/:user_id/fans", h.ListFans)
		v1.GET("/relations/:user_id/follows/:target", h.IsFollowing)
		v1.GET("/media/:cid", h.ResolveMedia)
		v1.GET("/stream", h.Stream)
	}

	write := v1.Group("", middleware.JWTAuth(cfg.JWTSecret))
	{
		write.POST("/posts", h.CreatePost)
		write.POST("/posts/:address/image", h.LinkImage)
		write.POST("/posts/:address/like", h.Like)
		write.DELETE("/posts/:address/like", h.Unlike)
		write.POST("/relations/follow", h.Follow)
		write.POST("/relations/unfollow", h.Unfollow)
		write.PUT("/users/me/profile", h.UpdateProfile)
	}
	return r
}
