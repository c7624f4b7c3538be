// Package api exposes the auth flows over HTTP using echo.
//
// Two cookies form the wire contract: the session cookie proves a login and
// the registration cookie correlates the three sign-up steps before an
// account exists. Both are http-only, same-site lax, and Secure unless
// disabled for plain-HTTP development.
//
// The handler is stateless between requests; every request consults exactly
// one token store and, on success, reads or mutates the account store.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/domain"
	"github.com/caregate/caregate/flow"
	"github.com/caregate/caregate/internal/logger"
	"github.com/caregate/caregate/session"
	"github.com/caregate/caregate/telemetry"
)

// Cookie names carried by the browser. The registration cookie is distinct
// from the session cookie: one correlates a sign-up in progress, the other
// proves a completed login.
const (
	SessionCookie      = "session_token"
	RegistrationCookie = "registration_session"
)

// Handler wires the flow managers to HTTP routes.
type Handler struct {
	accounts      domain.AccountStorage
	loginManager  *flow.LoginManager
	regManager    *flow.RegistrationManager
	recovery      *flow.RecoveryManager
	sessions      *session.Manager
	metrics       *telemetry.Provider
	secureCookies bool
	debug         bool
}

// NewHandler creates a Handler. Cookies default to Secure; debug mode is
// off.
func NewHandler(accounts domain.AccountStorage, login *flow.LoginManager, reg *flow.RegistrationManager, recovery *flow.RecoveryManager, sessions *session.Manager) *Handler {
	return &Handler{
		accounts:      accounts,
		loginManager:  login,
		regManager:    reg,
		recovery:      recovery,
		sessions:      sessions,
		secureCookies: true,
	}
}

// SetTelemetry wires metric recording.
func (h *Handler) SetTelemetry(p *telemetry.Provider) { h.metrics = p }

// SetSecureCookies controls the Secure cookie attribute.
func (h *Handler) SetSecureCookies(secure bool) { h.secureCookies = secure }

// SetDebug enables development-only behavior: raw reset tokens and internal
// error text appear in responses. Never enable in production.
func (h *Handler) SetDebug(debug bool) { h.debug = debug }

// RegisterRoutes mounts the auth endpoints on the group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.HandleLogin)
	g.POST("/logout", h.HandleLogout)
	g.POST("/forgot-password", h.HandleForgotPassword)
	g.POST("/reset-password", h.HandleResetPassword)
	g.GET("/status", h.HandleAuthStatus)

	g.POST("/register", h.HandleRegister)
	g.POST("/register/step1", h.HandleRegisterStep1)
	g.POST("/register/step2", h.HandleRegisterStep2)
	g.POST("/register/step3", h.HandleRegisterStep3)
	g.GET("/register/session", h.HandleRegistrationSession)
	g.POST("/register/complete", h.HandleRegisterComplete)

	protected := g.Group("")
	protected.Use(h.RequireSession)
	protected.GET("/me", h.HandleCurrentUser)
}

// RequireSession resolves the session cookie and stores the session in the
// request context, rejecting the request when no live session backs it.
func (h *Handler) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := h.sessions.Resolve(c.Request().Context(), cookieValue(c, SessionCookie))
		if err != nil {
			return h.fail(c, domain.ErrUnauthenticated)
		}
		c.Set("session", sess)
		return next(c)
	}
}

func (h *Handler) HandleLogin(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Remember bool   `json:"remember"`
	}
	if err := c.Bind(&body); err != nil {
		return h.fail(c, badRequest("Invalid request body"))
	}

	ctx := c.Request().Context()
	acct, err := h.loginManager.Authenticate(ctx, body.Email, body.Password)
	if err != nil {
		h.metrics.RecordLogin(ctx, false)
		return h.fail(c, err)
	}

	sess, err := h.sessions.Issue(ctx, acct, body.Remember)
	if err != nil {
		return h.fail(c, err)
	}
	h.metrics.RecordLogin(ctx, true)
	h.metrics.SessionOpened(ctx)

	h.setCookie(c, SessionCookie, sess.Token, int(h.sessions.TTL(body.Remember).Seconds()))

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Login successful",
		"redirect_url": "/dashboard",
		"user":         acct.Profile(),
		"token":        sess.Token,
	})
}

func (h *Handler) HandleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	if token := cookieValue(c, SessionCookie); token != "" {
		if err := h.sessions.Revoke(ctx, token); err == nil {
			h.metrics.SessionClosed(ctx)
		}
	}
	h.clearCookie(c, SessionCookie)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *Handler) HandleForgotPassword(c echo.Context) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil {
		return h.fail(c, badRequest("Invalid request body"))
	}

	token, err := h.recovery.Initiate(c.Request().Context(), body.Email)
	if err != nil {
		return h.fail(c, err)
	}

	// Identical response whether or not the account exists, so callers
	// cannot probe for registered emails. The raw token belongs in an
	// email, not in the response; debug mode is the only exception.
	resp := map[string]any{
		"success": true,
		"message": "If the email exists, a reset link has been sent.",
	}
	if h.debug && token != nil {
		resp["reset_token"] = token.Token
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleResetPassword(c echo.Context) error {
	var body struct {
		Token           string `json:"token"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := c.Bind(&body); err != nil {
		return h.fail(c, badRequest("Invalid request body"))
	}

	ctx := c.Request().Context()
	if err := h.recovery.ResetPassword(ctx, body.Token, body.NewPassword, body.ConfirmPassword); err != nil {
		h.metrics.RecordPasswordReset(ctx, false)
		return h.fail(c, err)
	}
	h.metrics.RecordPasswordReset(ctx, true)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Password has been reset successfully",
	})
}

func (h *Handler) HandleCurrentUser(c echo.Context) error {
	sess := c.Get("session").(*account.Session)
	acct, err := h.accounts.GetAccountByEmail(c.Request().Context(), sess.Email)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, acct.Profile())
}

func (h *Handler) HandleAuthStatus(c echo.Context) error {
	sess, err := h.sessions.Resolve(c.Request().Context(), cookieValue(c, SessionCookie))
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"authenticated": false})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       sess.AccountID,
		"email":         sess.Email,
	})
}

func (h *Handler) HandleRegister(c echo.Context) error {
	var body flow.RegistrationInput
	if err := c.Bind(&body); err != nil {
		return h.fail(c, badRequest("Invalid request body"))
	}

	ctx := c.Request().Context()
	acct, err := h.regManager.Register(ctx, &body)
	if err != nil {
		h.metrics.RecordRegistration(ctx, false)
		return h.fail(c, err)
	}
	h.metrics.RecordRegistration(ctx, true)

	sess, err := h.sessions.Issue(ctx, acct, false)
	if err != nil {
		return h.fail(c, err)
	}
	h.metrics.SessionOpened(ctx)
	h.setCookie(c, SessionCookie, sess.Token, int(session.DefaultTTL.Seconds()))

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Registration successful! Welcome to CareGate.",
		"redirect_url": "/dashboard",
		"user_id":      acct.ID,
	})
}

func (h *Handler) HandleRegisterStep1(c echo.Context) error {
	var body flow.BasicInfo
	if err := c.Bind(&body); err != nil {
		return h.fail(c, badRequest("Invalid request body"))
	}

	token, err := h.regManager.BeginWorkflow(c.Request().Context(), cookieValue(c, RegistrationCookie), &body)
	if err != nil {
		return h.fail(c, err)
	}

	h.setCookie(c, RegistrationCookie, token, 3600)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Step 1 saved successfully",
	})
}

func (h *Handler) HandleRegisterStep2(c echo.Context) error {
	var body flow.MedicalInput
	if err := c.Bind(&body); err != nil {
		return h.fail(c, badRequest("Invalid request body"))
	}
	if err := h.regManager.SaveMedicalStep(c.Request().Context(), cookieValue(c, RegistrationCookie), &body); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Step 2 saved successfully",
	})
}

func (h *Handler) HandleRegisterStep3(c echo.Context) error {
	var body flow.PreferencesInput
	if err := c.Bind(&body); err != nil {
		return h.fail(c, badRequest("Invalid request body"))
	}
	if err := h.regManager.SavePreferencesStep(c.Request().Context(), cookieValue(c, RegistrationCookie), &body); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Step 3 saved successfully",
	})
}

func (h *Handler) HandleRegistrationSession(c echo.Context) error {
	state, err := h.regManager.Workflow(c.Request().Context(), cookieValue(c, RegistrationCookie))
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"data": nil})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": state})
}

func (h *Handler) HandleRegisterComplete(c echo.Context) error {
	ctx := c.Request().Context()
	acct, err := h.regManager.Complete(ctx, cookieValue(c, RegistrationCookie))
	if err != nil {
		h.metrics.RecordRegistration(ctx, false)
		return h.fail(c, err)
	}
	h.metrics.RecordRegistration(ctx, true)

	sess, err := h.sessions.Issue(ctx, acct, false)
	if err != nil {
		return h.fail(c, err)
	}
	h.metrics.SessionOpened(ctx)

	h.setCookie(c, SessionCookie, sess.Token, int(session.DefaultTTL.Seconds()))
	h.clearCookie(c, RegistrationCookie)

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Registration successful! Welcome to CareGate.",
		"redirect_url": "/dashboard",
		"user_id":      acct.ID,
	})
}

// fail translates the error taxonomy into HTTP responses. Internal errors
// never leak their text unless debug mode is on.
func (h *Handler) fail(c echo.Context, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Validation failed",
			"errors":  ve.Fields,
		})
	case errors.Is(err, domain.ErrDuplicateAccount):
		return h.failWith(c, http.StatusBadRequest, "An account with this email already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return h.failWith(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, domain.ErrInvalidToken):
		return h.failWith(c, http.StatusBadRequest, "Invalid or expired reset token")
	case errors.Is(err, domain.ErrWorkflowNotFound):
		return h.failWith(c, http.StatusBadRequest, "Registration session not found")
	case errors.Is(err, domain.ErrUnauthenticated):
		return h.failWith(c, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, domain.ErrNotFound):
		return h.failWith(c, http.StatusNotFound, "User not found")
	default:
		if logger.Log != nil {
			logger.Log.Error("unexpected error", zap.Error(err), zap.String("path", c.Path()))
		}
		resp := map[string]any{
			"success": false,
			"message": "Internal server error",
		}
		if h.debug && err != nil {
			resp["error"] = err.Error()
		}
		return c.JSON(http.StatusInternalServerError, resp)
	}
}

func (h *Handler) failWith(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]any{
		"success": false,
		"message": message,
	})
}

func (h *Handler) setCookie(c echo.Context, name, value string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(c echo.Context, name string) {
	h.setCookie(c, name, "", -1)
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil || ck == nil {
		return ""
	}
	return ck.Value
}

func badRequest(message string) error {
	v := &domain.ValidationError{}
	v.Add("body", message)
	return v
}
