// controllers/webauthn_controller.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/ledger"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Srv) WhoAmI(c *app.Ctx) {
	uid := c.GetString("userID")
	u, err := s.Repo.FindUserByID(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	credCount, _ := s.Repo.CountCredentials(c.Request.Context(), uid)
	c.JSON(http.StatusOK, app.H{
		"user":        u,
		"isAdmin":     u.IsAdmin(),
		"hasPin":      u.HasPin(),
		"credentials": credCount,
	})
}

func (s *Srv) Logout(c *app.Ctx) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = s.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(s.WebOrigin, "https://"),
	})
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func registrationOpts() []webauthn.RegistrationOption {
	return []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
	}
}

// ===== 注册（自助，首次出现时建档） =====

type registerBeginReq struct {
	UserID      string `json:"userId" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	Department  string `json:"department"`
	Cohort      string `json:"cohort"`
}

func (s *Srv) BeginRegistration(c *gin.Context) {
	var in registerBeginReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	// 已有凭据的账号只能登录后在 /api/credentials/add 追加设备
	n, err := s.Repo.CountCredentials(ctx, in.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if n > 0 {
		c.JSON(http.StatusConflict, app.H{"error": "user already registered, please sign in"})
		return
	}

	if _, err := s.Ledger.UpsertUser(ctx, ledger.ProfileInput{
		UserID:      in.UserID,
		DisplayName: in.DisplayName,
		Department:  in.Department,
		Cohort:      in.Cohort,
	}); err != nil {
		fail(c, err)
		return
	}

	wUser, err := s.loadWAUserByID(ctx, in.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	opts, sd, err := s.WA.BeginRegistration(wUser, registrationOpts()...)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Sess.SaveReg(ctx, in.UserID, sd); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishRegistration(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		badRequest(c, "missing userId")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	sd, err := s.Sess.LoadReg(ctx, userID)
	if err != nil {
		badRequest(c, "session expired or invalid")
		return
	}

	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(userID, cred)); err != nil {
		fail(c, err)
		return
	}
	s.Sess.DelReg(ctx, userID)

	// ADMIN_USER_IDS 里的账号首次注册时直接提升
	if slices.Contains(s.Cfg.AdminUserIDs, userID) {
		if _, err := s.Repo.PromoteAdmins(ctx, []string{userID}); err != nil {
			zap.L().Warn("promote admin", zap.String("user", userID), zap.Error(err))
		}
	}

	// 注册即登录
	if err := s.issueSession(ctx, c.Writer, userID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "create app session failed"})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "userId": userID})
}

// ===== 添加新凭据（已登录） =====

func (s *Srv) BeginAddCredential(c *gin.Context) {
	uid := c.GetString("userID")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	// 已绑定的设备不再重复注册
	excl := make([]protocol.CredentialDescriptor, 0, len(wUser.creds))
	for _, cr := range wUser.creds {
		excl = append(excl, cr.Descriptor())
	}
	opts, sd, err := s.WA.BeginRegistration(wUser, append(registrationOpts(), webauthn.WithExclusions(excl))...)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Sess.SaveAdd(ctx, uid, sd); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	uid := c.GetString("userID")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	sd, err := s.Sess.LoadAdd(ctx, uid)
	if err != nil {
		badRequest(c, "session expired or invalid")
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(uid, cred)); err != nil {
		fail(c, err)
		return
	}
	s.Sess.DelAdd(ctx, uid)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// ===== 登录 =====

type loginBeginReq struct {
	UserID       string `json:"userId"`
	Discoverable bool   `json:"discoverable"`
}
type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad request")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if req.Discoverable || req.UserID == "" {
		opts, sd, err = s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		wUser, err2 := s.loadWAUserByID(ctx, req.UserID)
		if err2 != nil {
			c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
			return
		}
		opts, sd, err = s.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		fail(c, err)
		return
	}

	sid := uuid.NewString()
	if err := s.Sess.SaveAuth(ctx, sid, sd); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

func (s *Srv) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		badRequest(c, "missing sessionId")
		return
	}
	ip, ua := c.ClientIP(), c.Request.UserAgent()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	sd, err := s.Sess.LoadAuth(ctx, sid)
	if err != nil {
		badRequest(c, "session expired or invalid")
		return
	}

	var (
		userID string
		cred   *webauthn.Credential
	)
	if uid := c.Query("userId"); uid != "" {
		wUser, err := s.loadWAUserByID(ctx, uid)
		if err != nil {
			c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
			return
		}
		if cred, err = s.WA.FinishLogin(wUser, *sd, c.Request); err != nil {
			c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
			return
		}
		userID = wUser.user.ID
	} else {
		handler := func(rawID, _ []byte) (webauthn.User, error) {
			u, _, err := s.Repo.FindUserByCredentialID(ctx, rawID)
			if err != nil {
				return nil, protocol.ErrBadRequest.WithDetails("credential not found")
			}
			return s.loadWAUserByID(ctx, u.ID)
		}
		user, c2, err := s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
			return
		}
		cred = c2
		userID = user.(*waUser).user.ID
	}
	_ = s.Repo.UpdateCredentialCounter(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning)
	_ = s.Repo.TouchCredentialUsed(ctx, cred.ID)
	s.Sess.DelAuth(ctx, sid)

	if err := s.issueSession(ctx, c.Writer, userID, ip, ua); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "create app session failed"})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "redirect": "/dashboard"})
}
