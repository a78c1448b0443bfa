package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/myrecipebook/web-gateway/internal/events"
	"github.com/myrecipebook/web-gateway/internal/guard"
	"github.com/myrecipebook/web-gateway/internal/models"
	"github.com/myrecipebook/web-gateway/internal/services/auth"
	"github.com/myrecipebook/web-gateway/internal/services/backend"
	"github.com/myrecipebook/web-gateway/internal/session"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeLogin struct {
	calls atomic.Int32
	err   error
}

func (f *fakeLogin) Login(_ context.Context, email, password string) (*models.LoginResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if password != "pw" && password != "secret-pw" {
		return nil, &backend.APIError{StatusCode: http.StatusUnauthorized}
	}
	return &models.LoginResponse{
		ID:            "u1",
		Name:          "Ann",
		Email:         email,
		ResponseToken: &models.ResponseToken{Token: "T", RefreshToken: "R"},
	}, nil
}

type fakeBackend struct {
	registerErr error
	logoutErr   error
	resetErr    error

	mu           sync.Mutex
	registered   []models.RegisterRequest
	logoutTokens []string
	resetEmails  []string
}

func (f *fakeBackend) Register(_ context.Context, req models.RegisterRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, req)
	return f.registerErr
}

func (f *fakeBackend) Logout(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutTokens = append(f.logoutTokens, accessToken)
	return f.logoutErr
}

func (f *fakeBackend) RequestPasswordResetCode(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetEmails = append(f.resetEmails, email)
	return f.resetErr
}

func (f *fakeBackend) ResetPassword(context.Context, models.ResetPasswordRequest) error {
	return f.resetErr
}

func (f *fakeBackend) GoogleLoginURL(returnURL string) string {
	return "http://backend.test/user/login/google?returnUrl=" + url.QueryEscape(returnURL)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}
func (p *recordingPublisher) HealthCheck(context.Context) error { return nil }
func (p *recordingPublisher) Close() error                      { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type authFixture struct {
	router    *mux.Router
	minter    *session.Minter
	login     *fakeLogin
	backend   *fakeBackend
	publisher *recordingPublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	minter, err := session.NewMinter(testSecret, 0, session.NewMemoryRevocationStore())
	if err != nil {
		t.Fatalf("NewMinter() error: %v", err)
	}
	f := &authFixture{
		minter:    minter,
		login:     &fakeLogin{},
		backend:   &fakeBackend{},
		publisher: &recordingPublisher{},
	}
	verifier := auth.NewVerifier(f.login, nil, zap.NewNop())
	h := NewAuthHandler(verifier, minter, f.backend, f.publisher, zap.NewNop(), AuthConfig{
		LandingPath:    "/myrecipes",
		OAuthReturnURL: "http://gateway.test/redirect-after-login",
	})
	f.router = mux.NewRouter()
	g := guard.New(minter)
	h.RegisterRoutes(f.router.PathPrefix("/api/auth").Subrouter(), nil, g.Middleware)
	return f
}

func (f *authFixture) do(method, path, contentType, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestAuthHandler_Login(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		loginErr    error
		wantStatus  int
		wantCookie  bool
		wantCalls   int32
		validate    func(t *testing.T, body map[string]any)
	}{
		{
			name:        "json credentials",
			contentType: "application/json",
			body:        `{"username":"a@b.com","password":"pw"}`,
			wantStatus:  http.StatusOK,
			wantCookie:  true,
			wantCalls:   1,
			validate: func(t *testing.T, body map[string]any) {
				data := body["data"].(map[string]any)
				if data["url"] != "/myrecipes" {
					t.Errorf("Expected url /myrecipes, got %v", data["url"])
				}
				user := data["user"].(map[string]any)
				if user["id"] != "u1" || user["email"] != "a@b.com" || user["token"] != "T" {
					t.Errorf("Unexpected user %v", user)
				}
			},
		},
		{
			name:        "form credentials",
			contentType: "application/x-www-form-urlencoded",
			body:        "username=a%40b.com&password=pw",
			wantStatus:  http.StatusOK,
			wantCookie:  true,
			wantCalls:   1,
		},
		{
			name:        "dotted password still goes to the backend on the form login",
			contentType: "application/json",
			body:        `{"username":"a@b.com","password":"p.w"}`,
			wantStatus:  http.StatusUnauthorized,
			wantCalls:   1,
		},
		{
			name:        "wrong password",
			contentType: "application/json",
			body:        `{"username":"a@b.com","password":"nope"}`,
			wantStatus:  http.StatusUnauthorized,
			wantCalls:   1,
			validate: func(t *testing.T, body map[string]any) {
				if body["message"] != MsgInvalidCredentials {
					t.Errorf("Expected message %q, got %v", MsgInvalidCredentials, body["message"])
				}
			},
		},
		{
			name:        "backend down",
			contentType: "application/json",
			body:        `{"username":"a@b.com","password":"pw"}`,
			loginErr:    backend.ErrUnavailable,
			wantStatus:  http.StatusServiceUnavailable,
			wantCalls:   1,
			validate: func(t *testing.T, body map[string]any) {
				if body["message"] != MsgServiceUnavailable {
					t.Errorf("Expected message %q, got %v", MsgServiceUnavailable, body["message"])
				}
			},
		},
		{
			name:        "empty password",
			contentType: "application/json",
			body:        `{"username":"a@b.com","password":""}`,
			wantStatus:  http.StatusUnauthorized,
			wantCalls:   0,
		},
		{
			name:        "malformed body",
			contentType: "application/json",
			body:        `{"username":`,
			wantStatus:  http.StatusBadRequest,
			wantCalls:   0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newAuthFixture(t)
			f.login.err = tt.loginErr

			w := f.do(http.MethodPost, "/api/auth/login", tt.contentType, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := sessionCookie(t, w, f.minter.CookieName()) != nil; got != tt.wantCookie {
				t.Errorf("Expected cookie set = %v, got %v", tt.wantCookie, got)
			}
			if got := f.login.calls.Load(); got != tt.wantCalls {
				t.Errorf("Expected %d backend calls, got %d", tt.wantCalls, got)
			}
			if tt.validate != nil {
				tt.validate(t, decodeMap(t, w))
			}
		})
	}
}

func TestAuthHandler_CredentialsCallback(t *testing.T) {
	t.Parallel()

	t.Run("dotted secret is treated as an external token", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)

		w := f.do(http.MethodPost, "/api/auth/callback/credentials", "application/json",
			`{"username":"a@b.com","password":"x.y.z","name":"Ann"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if f.login.calls.Load() != 0 {
			t.Error("External token must not be sent to the backend login endpoint")
		}
		user := decodeMap(t, w)["data"].(map[string]any)["user"].(map[string]any)
		if user["id"] != models.ExternalSubjectID || user["token"] != "x.y.z" || user["name"] != "Ann" {
			t.Errorf("Unexpected user %v", user)
		}
	})

	t.Run("explicit password mode", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)

		w := f.do(http.MethodPost, "/api/auth/callback/credentials", "application/json",
			`{"username":"a@b.com","password":"pw","mode":"password"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if f.login.calls.Load() != 1 {
			t.Errorf("Expected 1 backend call, got %d", f.login.calls.Load())
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)

		w := f.do(http.MethodPost, "/api/auth/callback/credentials", "application/json",
			`{"username":"a@b.com","password":"pw","mode":"magic"}`)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestAuthHandler_SessionRoundTrip(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	w := f.do(http.MethodPost, "/api/auth/login", "application/json", `{"username":"a@b.com","password":"pw"}`)
	cookie := sessionCookie(t, w, f.minter.CookieName())
	if cookie == nil {
		t.Fatal("Expected session cookie")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" {
		t.Errorf("Unexpected cookie attributes: %+v", cookie)
	}

	w = f.do(http.MethodGet, "/api/auth/session", "", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeMap(t, w)
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("Expected raw session payload, got %v", body)
	}
	if user["id"] != "u1" || user["email"] != "a@b.com" || user["token"] != "T" {
		t.Errorf("Unexpected session user %v", user)
	}
	if _, ok := body["expires"].(string); !ok {
		t.Error("Expected expires in session payload")
	}

	w = f.do(http.MethodGet, "/api/auth/me", "", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from /me, got %d", w.Code)
	}
	me := decodeMap(t, w)["data"].(map[string]any)
	if me["id"] != "u1" || me["name"] != "Ann" {
		t.Errorf("Unexpected /me payload %v", me)
	}
	if _, ok := me["token"]; ok {
		t.Error("/me must not expose the access token")
	}

	w = f.do(http.MethodPost, "/api/auth/session", "application/json", `{"name":"Annie"}`, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from session update, got %d: %s", w.Code, w.Body.String())
	}
	updated := sessionCookie(t, w, f.minter.CookieName())
	if updated == nil {
		t.Fatal("Expected refreshed cookie after update")
	}
	s, err := f.minter.Read(context.Background(), updated.Value)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if s.User.Name != "Annie" {
		t.Errorf("Expected updated name, got %q", s.User.Name)
	}

	w = f.do(http.MethodPost, "/api/auth/signout", "", "", updated)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from signout, got %d", w.Code)
	}
	cleared := sessionCookie(t, w, f.minter.CookieName())
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("Expected cleared cookie, got %+v", cleared)
	}
	if len(f.backend.logoutTokens) != 1 || f.backend.logoutTokens[0] != "T" {
		t.Errorf("Expected backend logout with token T, got %v", f.backend.logoutTokens)
	}

	w = f.do(http.MethodGet, "/api/auth/session", "", "", updated)
	if body := strings.TrimSpace(w.Body.String()); body != "{}" {
		t.Errorf("Expected empty session after signout, got %s", body)
	}

	types := f.publisher.types()
	want := []events.Type{events.TypeLoginSucceeded, events.TypeSessionUpdated, events.TypeSignedOut}
	if len(types) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestAuthHandler_SignOutSurvivesRemoteFailure(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	f.backend.logoutErr = errors.New("backend down")

	w := f.do(http.MethodPost, "/api/auth/login", "application/json", `{"username":"a@b.com","password":"pw"}`)
	cookie := sessionCookie(t, w, f.minter.CookieName())

	w = f.do(http.MethodPost, "/api/auth/signout", "", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if _, err := f.minter.Read(context.Background(), cookie.Value); !errors.Is(err, session.ErrSessionRevoked) {
		t.Errorf("Expected session to be revoked, got %v", err)
	}
}

func TestAuthHandler_Unauthenticated(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	w := f.do(http.MethodGet, "/api/auth/session", "", "")
	if body := strings.TrimSpace(w.Body.String()); body != "{}" {
		t.Errorf("Expected {}, got %s", body)
	}

	w = f.do(http.MethodGet, "/api/auth/me", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 from /me, got %d", w.Code)
	}

	w = f.do(http.MethodPost, "/api/auth/signout", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected signout without session to succeed, got %d", w.Code)
	}
	if len(f.backend.logoutTokens) != 0 {
		t.Error("Expected no backend logout without a session")
	}
}

func TestAuthHandler_Register(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		registerErr error
		wantStatus  int
		wantCookie  bool
		validate    func(t *testing.T, body map[string]any)
	}{
		{
			name:       "registers and signs in",
			body:       `{"name":"Ann","email":" A@B.com","password":"secret-pw"}`,
			wantStatus: http.StatusOK,
			wantCookie: true,
			validate: func(t *testing.T, body map[string]any) {
				user := body["data"].(map[string]any)["user"].(map[string]any)
				if user["email"] != "a@b.com" {
					t.Errorf("Expected normalized email, got %v", user["email"])
				}
			},
		},
		{
			name:       "password too short",
			body:       `{"name":"Ann","email":"a@b.com","password":"pw"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "backend rejects",
			body:        `{"name":"Ann","email":"a@b.com","password":"secret-pw"}`,
			registerErr: &backend.APIError{StatusCode: http.StatusConflict, Messages: []string{"Email already in use"}},
			wantStatus:  http.StatusBadRequest,
			validate: func(t *testing.T, body map[string]any) {
				msgs, ok := body["errorMessages"].([]any)
				if !ok || len(msgs) != 1 || msgs[0] != "Email already in use" {
					t.Errorf("Expected backend messages, got %v", body["errorMessages"])
				}
			},
		},
		{
			name:        "backend down",
			body:        `{"name":"Ann","email":"a@b.com","password":"secret-pw"}`,
			registerErr: backend.ErrUnavailable,
			wantStatus:  http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newAuthFixture(t)
			f.backend.registerErr = tt.registerErr

			w := f.do(http.MethodPost, "/api/auth/register", "application/json", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := sessionCookie(t, w, f.minter.CookieName()) != nil; got != tt.wantCookie {
				t.Errorf("Expected cookie set = %v, got %v", tt.wantCookie, got)
			}
			if tt.validate != nil {
				tt.validate(t, decodeMap(t, w))
			}
		})
	}
}

func TestAuthHandler_GoogleLogin(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	w := f.do(http.MethodGet, "/api/auth/google", "", "")

	if w.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d", w.Code)
	}
	want := "http://backend.test/user/login/google?returnUrl=" + url.QueryEscape("http://gateway.test/redirect-after-login")
	if loc := w.Header().Get("Location"); loc != want {
		t.Errorf("Expected Location %q, got %q", want, loc)
	}
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	w := f.do(http.MethodPost, "/api/auth/password-reset/code", "application/json", `{"email":" A@B.com "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.backend.resetEmails) != 1 || f.backend.resetEmails[0] != "a@b.com" {
		t.Errorf("Expected normalized reset email, got %v", f.backend.resetEmails)
	}

	w = f.do(http.MethodPost, "/api/auth/password-reset/code", "application/json", `{"email":"nope"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid email, got %d", w.Code)
	}

	w = f.do(http.MethodPost, "/api/auth/password-reset", "application/json",
		`{"email":"a@b.com","code":"123456","newPassword":"secret-pw"}`)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}
