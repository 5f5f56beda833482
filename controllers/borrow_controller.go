// controllers/borrow_controller.go
package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/ledger"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
)

type BorrowController struct{ *Srv }

func NewBorrowController(s *Srv) *BorrowController { return &BorrowController{Srv: s} }

type borrowLineReq struct {
	ItemID     string `json:"itemId"`
	Quantity   uint32 `json:"quantity"`
	ProofRef   string `json:"proofRef"`
	ProofImage string `json:"proofImage"` // base64 / data URL
}

type borrowReq struct {
	Reason           string          `json:"reason"`
	ExpectedReturnAt string          `json:"expectedReturnAt"`
	Lines            []borrowLineReq `json:"lines"`
}

type returnLineReq struct {
	ItemID     string `json:"itemId"`
	Condition  string `json:"condition"`
	Notes      string `json:"notes"`
	ProofRef   string `json:"proofRef"`
	ProofImage string `json:"proofImage"`
}

type returnReq struct {
	Lines []returnLineReq `json:"lines"`
}

// parseDue 接受各种常见日期格式；只有日期时按当天结束算
func (bc *BorrowController) parseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseIn(s, bc.Loc)
	if err != nil {
		return time.Time{}, err
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

func toBorrowLines(in []borrowLineReq) []ledger.BorrowLine {
	lines := make([]ledger.BorrowLine, 0, len(in))
	for _, l := range in {
		lines = append(lines, ledger.BorrowLine{ItemID: l.ItemID, Quantity: l.Quantity, ProofRef: l.ProofRef})
	}
	return lines
}

func toReturnLines(in []returnLineReq) []ledger.ReturnLine {
	lines := make([]ledger.ReturnLine, 0, len(in))
	for _, l := range in {
		lines = append(lines, ledger.ReturnLine{ItemID: l.ItemID, Condition: l.Condition, Notes: l.Notes, ProofRef: l.ProofRef})
	}
	return lines
}

// resolveProof 上传内联图片，返回最终引用；新上传的文件记进 uploaded，批次失败时删掉
func (bc *BorrowController) resolveProof(userID, ref, image string, uploaded *[]string) string {
	out := bc.Proofs.Resolve(userID, ref, image)
	if out != strings.TrimSpace(ref) && strings.HasPrefix(out, "/uploads/") {
		*uploaded = append(*uploaded, out)
	}
	return out
}

// POST /api/borrows
func (bc *BorrowController) BorrowBatch(c *gin.Context) {
	var in borrowReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	due, err := bc.parseDue(in.ExpectedReturnAt)
	if err != nil {
		badRequest(c, "invalid expectedReturnAt")
		return
	}
	req := ledger.BorrowRequest{
		UserID:           c.GetString("userID"),
		Reason:           in.Reason,
		ExpectedReturnAt: due,
		Lines:            toBorrowLines(in.Lines),
	}
	bc.borrow(c, req, in.Lines, false)
}

// POST /api/returns
func (bc *BorrowController) ReturnBatch(c *gin.Context) {
	var in returnReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	req := ledger.ReturnRequest{UserID: c.GetString("userID"), Lines: toReturnLines(in.Lines)}
	bc.giveBack(c, req, in.Lines, false)
}

// POST /api/items/:id/borrow（旧接口，单件）
func (bc *BorrowController) Borrow(c *gin.Context) {
	var in struct {
		Quantity         uint32 `json:"quantity"`
		Reason           string `json:"reason"`
		ExpectedReturnAt string `json:"expectedReturnAt"`
		ProofRef         string `json:"proofRef"`
		ProofImage       string `json:"proofImage"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	due, err := bc.parseDue(in.ExpectedReturnAt)
	if err != nil {
		badRequest(c, "invalid expectedReturnAt")
		return
	}
	raw := []borrowLineReq{{
		ItemID: c.Param("id"), Quantity: in.Quantity, ProofRef: in.ProofRef, ProofImage: in.ProofImage,
	}}
	req := ledger.BorrowRequest{
		UserID:           c.GetString("userID"),
		Reason:           in.Reason,
		ExpectedReturnAt: due,
		Lines:            toBorrowLines(raw),
	}
	bc.borrow(c, req, raw, true)
}

// POST /api/items/:id/return（旧接口，单件）
func (bc *BorrowController) Return(c *gin.Context) {
	var in returnLineReq
	// body 可以为空；有内容就必须是合法 JSON
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err.Error())
			return
		}
	}
	in.ItemID = c.Param("id")
	raw := []returnLineReq{in}
	req := ledger.ReturnRequest{UserID: c.GetString("userID"), Lines: toReturnLines(raw)}
	bc.giveBack(c, req, raw, true)
}

// borrow 先做格式校验再上传凭证；台账拒绝时删掉这次上传的文件
func (bc *BorrowController) borrow(c *gin.Context, req ledger.BorrowRequest, raw []borrowLineReq, single bool) {
	if err := req.Check(); err != nil {
		fail(c, err)
		return
	}
	var uploaded []string
	for i := range req.Lines {
		req.Lines[i].ProofRef = bc.resolveProof(req.UserID, raw[i].ProofRef, raw[i].ProofImage, &uploaded)
	}

	ctx := c.Request.Context()
	var (
		res *ledger.BorrowResult
		err error
	)
	if single {
		res, err = bc.Ledger.Borrow(ctx, req.UserID, req.Reason, req.ExpectedReturnAt, req.Lines[0])
	} else {
		res, err = bc.Ledger.BorrowBatch(ctx, req)
	}
	if err != nil {
		bc.Proofs.Discard(uploaded...)
		fail(c, err)
		return
	}
	if single {
		c.JSON(http.StatusCreated, app.H{"ok": true, "transactionId": res.TransactionIDs[0]})
		return
	}
	c.JSON(http.StatusCreated, app.H{"ok": true, "transactionIds": res.TransactionIDs})
}

func (bc *BorrowController) giveBack(c *gin.Context, req ledger.ReturnRequest, raw []returnLineReq, single bool) {
	if err := req.Check(); err != nil {
		fail(c, err)
		return
	}
	var uploaded []string
	for i := range req.Lines {
		req.Lines[i].ProofRef = bc.resolveProof(req.UserID, raw[i].ProofRef, raw[i].ProofImage, &uploaded)
	}

	ctx := c.Request.Context()
	if single {
		out, err := bc.Ledger.Return(ctx, req.UserID, req.Lines[0])
		if err != nil {
			bc.Proofs.Discard(uploaded...)
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true, "line": out})
		return
	}
	res, err := bc.Ledger.ReturnBatch(ctx, req)
	if err != nil {
		bc.Proofs.Discard(uploaded...)
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "lines": res.Lines})
}

// GET /api/borrows/active?userId=  查看别人的需要管理员
func (bc *BorrowController) ListActive(c *gin.Context) {
	uid := c.GetString("userID")
	target := c.DefaultQuery("userId", uid)
	if target != uid && !c.GetBool("isAdmin") {
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden"})
		return
	}
	rows, err := bc.Ledger.ListActiveBorrows(c.Request.Context(), target)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "items": rows})
}

// GET /api/transactions（管理员，最新在前）
func (bc *BorrowController) ListTransactions(c *gin.Context) {
	txns, err := bc.Ledger.ListTransactions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "items": txns})
}
