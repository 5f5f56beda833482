package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/ledger"

	"github.com/gin-gonic/gin"
)

type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/users/lookup/:id  登录页用来判断走注册还是登录
func (uc *UserController) Lookup(c *gin.Context) {
	u, err := uc.Ledger.FindUser(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ledger.ErrUserNotFound) {
		c.JSON(http.StatusOK, app.H{"exists": false})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"exists": true, "user": u})
}

// PUT /api/users/me
func (uc *UserController) UpdateMe(c *gin.Context) {
	var in ledger.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	// 只能改自己
	in.UserID = c.GetString("userID")
	u, err := uc.Ledger.UpsertUser(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "user": u})
}

// PUT /api/users/me/pin
func (uc *UserController) SetPin(c *gin.Context) {
	var in struct {
		Pin string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := uc.Ledger.SetUserPin(c.Request.Context(), c.GetString("userID"), in.Pin); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/users?q=alice&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	q := c.Query("q")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.Repo.ListUsers(c.Request.Context(), q, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"total": res.Total,
		"users": res.Users,
	})
}

// DELETE /api/users/:id
func (uc *UserController) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	// 不允许删除自己，避免锁死
	if id == c.GetString("userID") {
		badRequest(c, "cannot delete yourself")
		return
	}
	target, err := uc.Ledger.FindUser(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	if target.IsAdmin() {
		c.JSON(http.StatusForbidden, app.H{"error": "cannot delete an admin"})
		return
	}

	// 会连带删 credentials，流水保留
	if err := uc.Repo.DeleteUserByID(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			err = ledger.ErrUserNotFound
		}
		fail(c, err)
		return
	}
	// 撤销该用户的所有登录会话
	_ = uc.AppSess.RevokeAllForUser(ctx, id)
	uc.audit(ctx, c.GetString("userID"), "Deleted user "+id)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
