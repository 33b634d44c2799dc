package handler

import (
	"log/slog"

	"billsplit/internal/config"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.ServerConfig, logger *slog.Logger) *gin.Engine {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	auth := AuthMiddleware(h.userService)

	api := r.Group("/api/v1")
	{
		api.GET("/health", h.Health)

		session := api.Group("/auth")
		{
			session.POST("/signup", h.Signup)
			session.POST("/login", h.Login)
			session.POST("/logout", auth, h.Logout)
			session.GET("/session", auth, h.Session)
		}

		user := api.Group("/user", auth)
		{
			user.GET("", h.GetUser)
			user.DELETE("", h.DeleteUser)
		}

		payments := api.Group("/payments", auth)
		{
			payments.POST("", h.CreatePayment)
			payments.GET("", h.ListPayments)
			payments.GET("/:id", h.GetPayment)
			payments.DELETE("/:id", h.DeletePayment)
		}

		debts := api.Group("/debtRelations", auth)
		{
			debts.GET("/awaiting", h.ListAwaitingDebtRelations)
			debts.PATCH("/:id", h.UpdateDebtRelation)
		}
	}

	return r
}
