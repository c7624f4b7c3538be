package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/flow"
	"github.com/caregate/caregate/memstore"
	"github.com/caregate/caregate/session"
)

func newTestServer(t *testing.T, debug bool) (*echo.Echo, *memstore.Store) {
	t.Helper()
	store := memstore.New()

	h := NewHandler(store,
		flow.NewLoginManager(store, flow.NewPBKDF2Hasher()),
		flow.NewRegistrationManager(store, store, flow.NewPBKDF2Hasher()),
		flow.NewRecoveryManager(store, store, flow.NewPBKDF2Hasher()),
		session.NewManager(store),
	)
	h.SetSecureCookies(false)
	h.SetDebug(debug)

	e := echo.New()
	h.RegisterRoutes(e.Group("/api/auth"))
	return e, store
}

func seedAccount(t *testing.T, store *memstore.Store, email, password string) {
	t.Helper()
	digest, err := flow.NewPBKDF2Hasher().Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	err = store.CreateAccount(context.Background(), &account.Account{
		ID:             "acct-" + email,
		Email:          email,
		Name:           "Test User",
		PasswordDigest: digest,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func do(e *echo.Echo, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestLoginLogout(t *testing.T) {
	e, store := newTestServer(t, false)
	seedAccount(t, store, "jane@example.com", "Str0ng!pass")

	rec := do(e, http.MethodPost, "/api/auth/login", `{"email":"jane@example.com","password":"Str0ng!pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != true || body["redirect_url"] != "/dashboard" {
		t.Errorf("unexpected login response %v", body)
	}
	if body["token"] == "" || body["token"] == nil {
		t.Error("expected a token in the response")
	}

	ck := findCookie(rec, SessionCookie)
	if ck == nil || ck.Value == "" {
		t.Fatal("expected a session cookie")
	}
	if !ck.HttpOnly {
		t.Error("session cookie must be http-only")
	}
	if ck.MaxAge != int((24 * time.Hour).Seconds()) {
		t.Errorf("expected 24h cookie max-age, got %d", ck.MaxAge)
	}

	rec = do(e, http.MethodGet, "/api/auth/me", "", ck)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d", rec.Code)
	}
	profile := decode(t, rec)
	if profile["email"] != "jane@example.com" {
		t.Errorf("unexpected profile %v", profile)
	}
	if _, ok := profile["password_digest"]; ok {
		t.Error("profile must not carry the password digest")
	}

	rec = do(e, http.MethodPost, "/api/auth/logout", "", ck)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", rec.Code)
	}
	if cleared := findCookie(rec, SessionCookie); cleared == nil || cleared.MaxAge >= 0 {
		t.Error("expected logout to clear the session cookie")
	}

	rec = do(e, http.MethodGet, "/api/auth/me", "", ck)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestLoginRememberCookieTTL(t *testing.T) {
	e, store := newTestServer(t, false)
	seedAccount(t, store, "jane@example.com", "Str0ng!pass")

	rec := do(e, http.MethodPost, "/api/auth/login", `{"email":"jane@example.com","password":"Str0ng!pass","remember":true}`)
	ck := findCookie(rec, SessionCookie)
	if ck == nil {
		t.Fatal("expected a session cookie")
	}
	if ck.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Errorf("expected 30d cookie max-age, got %d", ck.MaxAge)
	}
}

func TestLoginFailures(t *testing.T) {
	e, store := newTestServer(t, false)
	seedAccount(t, store, "jane@example.com", "Str0ng!pass")

	for _, body := range []string{
		`{"email":"nobody@example.com","password":"Str0ng!pass"}`,
		`{"email":"jane@example.com","password":"Wr0ng!pass"}`,
	} {
		rec := do(e, http.MethodPost, "/api/auth/login", body)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		resp := decode(t, rec)
		if resp["message"] != "Invalid email or password" {
			t.Errorf("unexpected message %v", resp["message"])
		}
	}
}

func TestLoginValidationError(t *testing.T) {
	e, _ := newTestServer(t, false)

	rec := do(e, http.MethodPost, "/api/auth/login", `{"email":"not-an-email","password":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp["message"] != "Validation failed" {
		t.Errorf("unexpected message %v", resp["message"])
	}
	if _, ok := resp["errors"].([]any); !ok {
		t.Errorf("expected field errors, got %v", resp["errors"])
	}
}

func TestAuthStatus(t *testing.T) {
	e, store := newTestServer(t, false)
	seedAccount(t, store, "jane@example.com", "Str0ng!pass")

	rec := do(e, http.MethodGet, "/api/auth/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decode(t, rec); resp["authenticated"] != false {
		t.Errorf("expected unauthenticated status, got %v", resp)
	}

	login := do(e, http.MethodPost, "/api/auth/login", `{"email":"jane@example.com","password":"Str0ng!pass"}`)
	ck := findCookie(login, SessionCookie)

	rec = do(e, http.MethodGet, "/api/auth/status", "", ck)
	resp := decode(t, rec)
	if resp["authenticated"] != true || resp["email"] != "jane@example.com" {
		t.Errorf("unexpected status %v", resp)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	e, store := newTestServer(t, true)
	seedAccount(t, store, "jane@example.com", "Old!pass1")

	rec := do(e, http.MethodPost, "/api/auth/forgot-password", `{"email":"jane@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode(t, rec)
	token, _ := resp["reset_token"].(string)
	if token == "" {
		t.Fatal("expected a reset token in debug mode")
	}

	rec = do(e, http.MethodPost, "/api/auth/reset-password",
		`{"token":"`+token+`","new_password":"New!pass1","confirm_password":"New!pass1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from reset, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/auth/login", `{"email":"jane@example.com","password":"New!pass1"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected new password to log in, got %d", rec.Code)
	}

	// A reset token is single-use.
	rec = do(e, http.MethodPost, "/api/auth/reset-password",
		`{"token":"`+token+`","new_password":"Other!pass1","confirm_password":"Other!pass1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on token reuse, got %d", rec.Code)
	}
	if resp := decode(t, rec); resp["message"] != "Invalid or expired reset token" {
		t.Errorf("unexpected message %v", resp["message"])
	}
}

// The forgot-password response must not reveal whether the email exists.
func TestForgotPasswordNoEnumeration(t *testing.T) {
	e, store := newTestServer(t, false)
	seedAccount(t, store, "jane@example.com", "Str0ng!pass")

	known := do(e, http.MethodPost, "/api/auth/forgot-password", `{"email":"jane@example.com"}`)
	unknown := do(e, http.MethodPost, "/api/auth/forgot-password", `{"email":"nobody@example.com"}`)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200/200, got %d/%d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Errorf("responses differ:\n%s\n%s", known.Body.String(), unknown.Body.String())
	}
	if _, ok := decode(t, known)["reset_token"]; ok {
		t.Error("raw reset token leaked outside debug mode")
	}
}

func TestRegisterSingleShot(t *testing.T) {
	e, _ := newTestServer(t, false)

	payload := `{
		"full_name": "Jane Doe",
		"email": "jane@example.com",
		"password": "Str0ng!pass",
		"date_of_birth": "1990-05-20",
		"gender": "female",
		"height": 180,
		"weight": 75,
		"accept_terms": true
	}`
	rec := do(e, http.MethodPost, "/api/auth/register", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["success"] != true || resp["user_id"] == "" {
		t.Errorf("unexpected response %v", resp)
	}

	ck := findCookie(rec, SessionCookie)
	if ck == nil || ck.Value == "" {
		t.Fatal("expected registration to open a session")
	}
	me := do(e, http.MethodGet, "/api/auth/me", "", ck)
	if me.Code != http.StatusOK {
		t.Errorf("expected 200 from /me after registration, got %d", me.Code)
	}

	dup := do(e, http.MethodPost, "/api/auth/register", payload)
	if dup.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate email, got %d", dup.Code)
	}
	if resp := decode(t, dup); resp["message"] != "An account with this email already exists" {
		t.Errorf("unexpected message %v", resp["message"])
	}
}

func TestRegisterWorkflow(t *testing.T) {
	e, _ := newTestServer(t, false)

	step1 := do(e, http.MethodPost, "/api/auth/register/step1", `{
		"full_name": "Jane Doe",
		"email": "jane@example.com",
		"password": "Str0ng!pass",
		"date_of_birth": "1990-05-20",
		"gender": "female"
	}`)
	if step1.Code != http.StatusOK {
		t.Fatalf("step1 failed: %d %s", step1.Code, step1.Body.String())
	}
	ck := findCookie(step1, RegistrationCookie)
	if ck == nil || ck.Value == "" {
		t.Fatal("expected a registration cookie after step 1")
	}

	step2 := do(e, http.MethodPost, "/api/auth/register/step2", `{"height":180,"weight":75,"blood_type":"O+"}`, ck)
	if step2.Code != http.StatusOK {
		t.Fatalf("step2 failed: %d %s", step2.Code, step2.Body.String())
	}
	step3 := do(e, http.MethodPost, "/api/auth/register/step3", `{"accept_terms":true}`, ck)
	if step3.Code != http.StatusOK {
		t.Fatalf("step3 failed: %d %s", step3.Code, step3.Body.String())
	}

	state := do(e, http.MethodGet, "/api/auth/register/session", "", ck)
	if state.Code != http.StatusOK {
		t.Fatalf("session lookup failed: %d", state.Code)
	}
	data, _ := decode(t, state)["data"].(map[string]any)
	if data == nil {
		t.Fatal("expected workflow state")
	}
	if steps, _ := data["steps"].(map[string]any); len(steps) != 3 {
		t.Errorf("expected 3 saved steps, got %v", data["steps"])
	}

	complete := do(e, http.MethodPost, "/api/auth/register/complete", "", ck)
	if complete.Code != http.StatusOK {
		t.Fatalf("complete failed: %d %s", complete.Code, complete.Body.String())
	}
	if sess := findCookie(complete, SessionCookie); sess == nil || sess.Value == "" {
		t.Error("expected completion to open a session")
	}
	if reg := findCookie(complete, RegistrationCookie); reg == nil || reg.MaxAge >= 0 {
		t.Error("expected completion to clear the registration cookie")
	}

	login := do(e, http.MethodPost, "/api/auth/login", `{"email":"jane@example.com","password":"Str0ng!pass"}`)
	if login.Code != http.StatusOK {
		t.Errorf("expected workflow account to log in, got %d", login.Code)
	}
}

func TestRegisterStepWithoutWorkflow(t *testing.T) {
	e, _ := newTestServer(t, false)

	rec := do(e, http.MethodPost, "/api/auth/register/step2", `{"height":180,"weight":75}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decode(t, rec); resp["message"] != "Registration session not found" {
		t.Errorf("unexpected message %v", resp["message"])
	}

	state := do(e, http.MethodGet, "/api/auth/register/session", "")
	if state.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", state.Code)
	}
	if resp := decode(t, state); resp["data"] != nil {
		t.Errorf("expected empty workflow state, got %v", resp["data"])
	}
}

func TestRequireSessionWithoutCookie(t *testing.T) {
	e, _ := newTestServer(t, false)

	rec := do(e, http.MethodGet, "/api/auth/me", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if resp := decode(t, rec); resp["message"] != "Not authenticated" {
		t.Errorf("unexpected message %v", resp["message"])
	}
}
