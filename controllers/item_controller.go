// controllers/item_controller.go
package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/ledger"

	"github.com/gin-gonic/gin"
)

type ItemController struct{ *Srv }

func NewItemController(s *Srv) *ItemController { return &ItemController{Srv: s} }

// 列表（含派生的 status），公开
func (ic *ItemController) ListItems(c *gin.Context) {
	items, err := ic.Ledger.ListItems(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "items": items})
}

// 管理员：新增物品，可用量 = 总量
func (ic *ItemController) CreateItem(c *gin.Context) {
	var in ledger.AddItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	it, err := ic.Ledger.AddItem(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	ic.audit(c.Request.Context(), c.GetString("userID"), fmt.Sprintf("Added item %s (%s)", it.ID, it.Name))
	c.JSON(http.StatusCreated, app.H{"ok": true, "item": it})
}

// 管理员：覆盖字段，未传的字段不变
func (ic *ItemController) UpdateItem(c *gin.Context) {
	id := c.Param("id")
	var in ledger.EditItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	it, err := ic.Ledger.EditItem(c.Request.Context(), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	ic.audit(c.Request.Context(), c.GetString("userID"), "Edited item "+id)
	c.JSON(http.StatusOK, app.H{"ok": true, "item": it})
}

func (ic *ItemController) DeleteItem(c *gin.Context) {
	id := c.Param("id")
	if err := ic.Ledger.RemoveItem(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ic.audit(c.Request.Context(), c.GetString("userID"), "Deleted item "+id)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/admin/items?q=&status=&page=&size=
func (ic *ItemController) ListItemsAdmin(c *gin.Context) {
	q := ledger.AdminItemsQuery{
		Q:      c.Query("q"),
		Status: c.Query("status"), // "", "available", "borrowed", "overdue"
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := ic.Ledger.AdminItems(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "items": res})
}
