package routes

import (
	"net/http"
	"time"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/controllers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	itemCtl := controllers.NewItemController(s)
	borrowCtl := controllers.NewBorrowController(s)
	userCtl := controllers.NewUserController(s)
	adminCtl := controllers.NewAdminController(s)

	// 复用的中间件
	authMW := app.AuthRequired(s.AppSess, s.Repo)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)
	limitMW := app.RateLimit(a.Config.RateLimitRPS, a.Config.RateLimitBurst)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static("/uploads", a.Config.UploadDir)

	// ------------------------------
	// WebAuthn（公开+受保护）
	// ------------------------------
	wa := r.Group("/webauthn")
	{
		wa.POST("/register/begin", limitMW, s.BeginRegistration)
		wa.POST("/register/finish", s.FinishRegistration)

		wa.POST("/login/begin", limitMW, s.BeginLogin)
		wa.POST("/login/finish", s.FinishLogin)
	}
	waAuth := wa.Group("", authMW, seenMW)
	{
		waAuth.GET("/whoami", s.WhoAmI)
		waAuth.POST("/logout", s.Logout)
	}

	// 已登录用户添加新凭据（绑定手机等）
	creds := r.Group("/api/credentials", authMW, seenMW)
	{
		creds.POST("/add/begin", s.BeginAddCredential)
		creds.POST("/add/finish", s.FinishAddCredential)
	}

	// ------------------------------
	// 物品
	// ------------------------------
	r.GET("/api/items", itemCtl.ListItems)

	itemsAdmin := r.Group("/api/items", authMW, adminMW)
	{
		itemsAdmin.POST("", itemCtl.CreateItem)
		itemsAdmin.PUT("/:id", itemCtl.UpdateItem)
		itemsAdmin.DELETE("/:id", itemCtl.DeleteItem)
	}

	// ------------------------------
	// 借还
	// ------------------------------
	loans := r.Group("/api", authMW, seenMW)
	{
		loans.POST("/borrows", limitMW, borrowCtl.BorrowBatch)
		loans.POST("/returns", limitMW, borrowCtl.ReturnBatch)
		loans.GET("/borrows/active", borrowCtl.ListActive) // ?userId=

		// 旧的单件接口
		loans.POST("/items/:id/borrow", limitMW, borrowCtl.Borrow)
		loans.POST("/items/:id/return", limitMW, borrowCtl.Return)
	}
	r.GET("/api/transactions", authMW, adminMW, borrowCtl.ListTransactions)

	// ------------------------------
	// 用户
	// ------------------------------
	r.GET("/api/users/lookup/:id", userCtl.Lookup)
	me := r.Group("/api/users/me", authMW, seenMW)
	{
		me.PUT("", userCtl.UpdateMe)
		me.PUT("/pin", userCtl.SetPin)
	}
	users := r.Group("/api/users", authMW, adminMW)
	{
		users.GET("", userCtl.ListUsers) // ?q=&page=&size=
		users.DELETE("/:id", userCtl.DeleteUser)
	}

	// ------------------------------
	// 管理后台
	// ------------------------------
	admin := r.Group("/api/admin", authMW, adminMW)
	{
		admin.POST("/unlock", limitMW, adminCtl.Unlock)
		admin.GET("/items", itemCtl.ListItemsAdmin) // ?q=&status=&page=&size=
		admin.POST("/sweep", adminCtl.Sweep)
		admin.GET("/logs", adminCtl.ListLogs)
		admin.POST("/logs", adminCtl.AddLog)
		admin.POST("/import", adminCtl.Import)
	}
}
