package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/ledger"
	"Gin_postgres_redis_tool_crib/models"
	"Gin_postgres_redis_tool_crib/sheet"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxImportSize = 10 << 20

type AdminController struct{ *Srv }

func NewAdminController(s *Srv) *AdminController { return &AdminController{Srv: s} }

// POST /api/admin/unlock  进管理后台前再校验一次 PIN
func (ac *AdminController) Unlock(c *gin.Context) {
	var in struct {
		Pin string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	uid := c.GetString("userID")
	if err := ac.Ledger.VerifyPin(c.Request.Context(), uid, in.Pin); err != nil {
		if errors.Is(err, ledger.ErrPinMismatch) {
			c.JSON(http.StatusUnauthorized, app.H{"error": "wrong pin"})
			return
		}
		fail(c, err)
		return
	}
	ac.audit(c.Request.Context(), uid, "Unlocked admin panel")
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/admin/sweep  手动触发逾期扫描
func (ac *AdminController) Sweep(c *gin.Context) {
	n, err := ac.Ledger.SweepOverdue(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "updated": n})
}

// GET /api/admin/logs?limit=
func (ac *AdminController) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := ac.Repo.RecentActivity(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "logs": logs})
}

// POST /api/admin/logs  前端自己记的操作
func (ac *AdminController) AddLog(c *gin.Context) {
	var in struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Action) == "" {
		badRequest(c, "action is required")
		return
	}
	entry, err := ac.Repo.LogActivity(c.Request.Context(), c.GetString("userID"), strings.TrimSpace(in.Action))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"ok": true, "log": entry})
}

// POST /api/admin/import  multipart "file"，旧的 xlsx 台账
func (ac *AdminController) Import(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if fh.Size > maxImportSize {
		badRequest(c, "file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	wb, err := sheet.Parse(f)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	rep, err := ac.Ledger.ImportItems(ctx, wb.Items)
	if err != nil {
		fail(c, err)
		return
	}

	var (
		users  int
		admins []string
	)
	for _, ur := range wb.Users {
		u := ur.User
		if _, err := ac.Ledger.UpsertUser(ctx, ledger.ProfileInput{
			UserID: u.ID, DisplayName: u.DisplayName, Department: u.Department, Cohort: u.Cohort,
		}); err != nil {
			wb.Skipped = append(wb.Skipped, sheet.RowError{Sheet: sheet.SheetUsers, Err: fmt.Sprintf("%s: %v", u.ID, err)})
			continue
		}
		users++
		if ur.Pin != "" {
			if err := ac.Ledger.SetUserPin(ctx, u.ID, ur.Pin); err != nil {
				zap.L().Warn("import pin skipped", zap.String("user", u.ID), zap.Error(err))
			}
		}
		if u.Role == models.RoleAdmin {
			admins = append(admins, u.ID)
		}
	}
	if len(admins) > 0 {
		if _, err := ac.Repo.PromoteAdmins(ctx, admins); err != nil {
			fail(c, err)
			return
		}
	}

	ac.audit(ctx, c.GetString("userID"),
		fmt.Sprintf("Imported %d items, %d users from %s", len(rep.Created), users, fh.Filename))
	c.JSON(http.StatusOK, app.H{
		"ok":           true,
		"itemsCreated": rep.Created,
		"itemsSkipped": rep.Skipped,
		"users":        users,
		"rowsSkipped":  wb.Skipped,
	})
}
