package router

import (
	"time"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/handlers"
	"github.com/breathe-dev/breathe/internal/middleware"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

type Dependencies struct {
	Handler        *handlers.Handler
	Hub            *handlers.Hub
	Store          *db.Store
	Tokens         *auth.TokenService
	Limiter        middleware.Limiter
	AllowedOrigins []string
	Logger         *zap.Logger
}

func New(deps Dependencies) *gin.Engine {
	binding.EnableDecoderDisallowUnknownFields = true

	r := gin.New()

	r.Use(middleware.RequestLogger(deps.Logger), gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With", types.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", types.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if deps.Limiter != nil {
		r.Use(middleware.RateLimit(deps.Limiter, deps.Logger))
	}

	h := deps.Handler
	authenticate := middleware.Authenticate(deps.Tokens)

	r.GET("/health", h.HealthCheck)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.Register)
		authGroup.POST("/logout", h.Logout)
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/user", h.ListUsers)
		v1.GET("/user/me", authenticate, h.GetMe)
		v1.PUT("/user", authenticate, h.UpdateMe)
		v1.DELETE("/user", authenticate, h.DeleteMe)

		v1.GET("/room", h.ListRooms)
		v1.GET("/sensor", authenticate, h.ListSensors)

		v1.GET("/history", h.ListHistory)
		v1.GET("/history/export", authenticate, middleware.RequireRole(deps.Store, auth.RoleProfessor, deps.Logger), h.ExportHistory)

		if deps.Hub != nil {
			v1.GET("/ws", deps.Hub.Serve)
		}
	}

	admin := v1.Group("/admin", authenticate, middleware.RequireRole(deps.Store, auth.RoleAdmin, deps.Logger))
	{
		admin.GET("/user", h.AdminListUsers)
		admin.POST("/user", h.AdminCreateUser)
		admin.PUT("/user", h.AdminUpdateUser)
		admin.DELETE("/user", h.AdminDeleteUser)

		admin.GET("/room", h.ListRooms)
		admin.POST("/room", h.CreateRoom)
		admin.PUT("/room", h.UpdateRoom)
		admin.DELETE("/room", h.DeleteRoom)

		admin.GET("/sensor", h.AdminListSensors)
		admin.POST("/sensor", h.CreateSensor)
		admin.PUT("/sensor", h.UpdateSensor)
		admin.DELETE("/sensor", h.DeleteSensor)

		admin.GET("/history", h.ListHistory)
		admin.POST("/history", h.CreateHistory)
		admin.DELETE("/history", h.DeleteHistory)

		admin.GET("/subscription", h.ListSubscriptions)
		admin.POST("/subscription", h.CreateSubscription)
		admin.DELETE("/subscription", h.DeleteSubscription)
	}

	return r
}
