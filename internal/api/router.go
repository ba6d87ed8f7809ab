package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/community-core/internal/api/handler"
	"github.com/d60-Lab/community-core/internal/api/middleware"
)

// NewRouter 组装路由；浏览/点赞热路径单独限流
func NewRouter(h *handler.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	v1 := r.Group("/api/v1")
	{
		boards := v1.Group("/boards")
		{
			boards.POST("", h.CreateBoard)
			boards.GET("/:id", h.GetBoard)
			boards.PUT("/:id", h.UpdateBoard)
			boards.DELETE("/:id", h.DeleteBoard)
			boards.POST("/:id/comments", h.CreateComment)

			hot := boards.Group("")
			hot.Use(middleware.RateLimit(5000, 10000))
			{
				hot.POST("/:id/view", h.View)
				hot.PUT("/:id/like", h.Like)
				hot.DELETE("/:id/like", h.Unlike)
			}
		}
		v1.DELETE("/comments/:id", h.DeleteComment)
		v1.GET("/dead-letters", h.ListDeadLetters)
		v1.GET("/dead-letters/:event_id", h.GetDeadLetter)
	}
	return r
}
