package app

import (
	"profense_backend/docs"
	"profense_backend/internal/config"
	"profense_backend/internal/middleware"
	"profense_backend/internal/model"
	"profense_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.Profile)

		// 辅导会话
		sessions := authGroup.Group("/sessions")
		{
			sessions.POST("/chat", c.session.Chat)
			sessions.GET("", c.session.List)
			sessions.GET("/:id", c.session.Get)
			sessions.POST("/:id/pause", c.session.Pause)
			sessions.POST("/:id/resume", c.session.Resume)
			sessions.POST("/:id/complete", c.session.Complete)
			sessions.POST("/:id/archive", c.session.Archive)
		}

		// 测验与作答
		assessments := authGroup.Group("/assessments")
		{
			assessments.POST("/generate", c.assessment.Generate)
			assessments.GET("", c.assessment.List)
			assessments.GET("/:id", c.assessment.Get)
			assessments.POST("/:id/attempts", c.assessment.StartAttempt)
			assessments.GET("/:id/attempts", c.assessment.Attempts)
		}
		attempts := authGroup.Group("/attempts")
		{
			attempts.POST("/:id/submit", c.assessment.SubmitAttempt)
			attempts.POST("/:id/abandon", c.assessment.AbandonAttempt)
		}

		// 快速问答
		qa := authGroup.Group("/qa")
		{
			qa.POST("/ask", c.qa.Ask)
			qa.POST("/ask/stream", c.qa.AskStream)
		}

		// 课程（教师与管理员）
		courses := authGroup.Group("/courses")
		{
			courses.GET("", c.course.List)
			courses.GET("/:id", c.course.Get)

			manage := courses.Group("")
			manage.Use(middleware.RoleMiddleware(model.Teacher))
			{
				manage.POST("", c.course.Create)
				manage.PUT("/:id", c.course.Update)
				manage.DELETE("/:id", c.course.Delete)
				manage.POST("/:id/topics", c.course.AddTopic)
			}
		}
	}
}
