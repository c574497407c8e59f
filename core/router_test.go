package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBackend simulates the CMS REST backend with enveloped replies.
type fakeBackend struct {
	srv *httptest.Server

	lastAuth          string
	adminUnauthorized bool
	loginUnauthorized bool

	lastSearch    url.Values
	lastUserInput UserInput
	userDeleted   bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}

	writeEnv := func(w http.ResponseWriter, data any) {
		w.Header().Set("Content-Type", "application/json")
		payload, _ := json.Marshal(data)
		fmt.Fprintf(w, `{"code":200,"message":"success","data":%s}`, payload)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/categories/tree", func(w http.ResponseWriter, r *http.Request) {
		writeEnv(w, CategoryTree{Tree: []CategoryTreeNode{{ID: 1, Name: "news"}}})
	})
	mux.HandleFunc("/api/public/articles", func(w http.ResponseWriter, r *http.Request) {
		writeEnv(w, []Article{{ID: 5, Title: "first post", Status: "PUBLISHED", CategoryName: "news"}})
	})
	mux.HandleFunc("/api/public/articles/5", func(w http.ResponseWriter, r *http.Request) {
		writeEnv(w, Article{ID: 5, Title: "first post", Status: "PUBLISHED", RenderedContent: "<p>hi</p>"})
	})
	mux.HandleFunc("/api/public/categories", func(w http.ResponseWriter, r *http.Request) {
		writeEnv(w, []Category{{ID: 1, Name: "news"}})
	})
	mux.HandleFunc("/api/public/articles/search", func(w http.ResponseWriter, r *http.Request) {
		fb.lastSearch = r.URL.Query()
		writeEnv(w, ArticlePage{
			Content:       []Article{{ID: 5, Title: "first post", Status: "PUBLISHED", CategoryName: "news"}},
			TotalElements: 1,
			TotalPages:    1,
		})
	})
	mux.HandleFunc("/api/public/articles/5/like/count", func(w http.ResponseWriter, r *http.Request) {
		writeEnv(w, LikeCount{Count: 3})
	})
	mux.HandleFunc("/api/public/articles/5/like/status", func(w http.ResponseWriter, r *http.Request) {
		writeEnv(w, LikeStatus{Liked: false})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if fb.loginUnauthorized {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username == "admin" && req.Password == "secret" {
			writeEnv(w, User{ID: 1, Username: "admin", Role: "ADMIN"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":400,"message":"ユーザー名またはパスワードが違います"}`))
	})
	mux.HandleFunc("/api/admin/articles", func(w http.ResponseWriter, r *http.Request) {
		fb.lastAuth = r.Header.Get("Authorization")
		if fb.adminUnauthorized || fb.lastAuth == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		writeEnv(w, []Article{{ID: 5, Title: "first post", Status: "DRAFT"}})
	})
	mux.HandleFunc("/api/auth/current", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		writeEnv(w, User{ID: 1, Username: "admin", Email: "admin@example.com", Role: "ADMIN", Status: "ACTIVE"})
	})
	mux.HandleFunc("/api/admin/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&fb.lastUserInput)
			writeEnv(w, User{ID: 9, Username: fb.lastUserInput.Username, Role: fb.lastUserInput.Role})
		default:
			writeEnv(w, []User{{ID: 7, Username: "bob", Email: "bob@example.com", Role: "USER", Status: "ACTIVE"}})
		}
	})
	mux.HandleFunc("/api/admin/users/7", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&fb.lastUserInput)
			writeEnv(w, User{ID: 7, Username: fb.lastUserInput.Username, Role: fb.lastUserInput.Role})
		case http.MethodDelete:
			fb.userDeleted = true
			writeEnv(w, nil)
		default:
			writeEnv(w, User{ID: 7, Username: "bob", Email: "bob@example.com", Role: "USER", Status: "ACTIVE"})
		}
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

// webApp drives the router like a browser: it keeps cookies and the latest
// CSRF token between requests.
type webApp struct {
	t       *testing.T
	router  *gin.Engine
	backend *fakeBackend
	cookies map[string]*http.Cookie
	csrf    string
}

func newWebApp(t *testing.T) *webApp {
	t.Helper()
	backend := newFakeBackend(t)

	cfg := Config{
		SessionKey:     "test-session-key",
		CookieSameSite: "Lax",
		AllowedOrigins: []string{"https://cms.example"},
	}
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))
	creds := NewCredentialStore(cfg, store)
	api := NewAPIClient(backend.srv.URL)
	router := NewRouter(cfg, store, creds, api, nil)

	return &webApp{
		t:       t,
		router:  router,
		backend: backend,
		cookies: map[string]*http.Cookie{},
	}
}

func (a *webApp) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.doWithOrigin(method, path, "", form)
}

func (a *webApp) doWithOrigin(method, path, origin string, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for _, c := range a.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(a.cookies, c.Name)
			continue
		}
		a.cookies[c.Name] = c
	}
	if tok := w.Header().Get("X-CSRF-Token"); tok != "" {
		a.csrf = tok
	}
	return w
}

func (a *webApp) login(username, password string) {
	a.t.Helper()
	a.do(http.MethodGet, "/login", nil) // pick up session + csrf token
	w := a.do(http.MethodPost, "/login", url.Values{
		"_csrf":    {a.csrf},
		"username": {username},
		"password": {password},
	})
	if w.Code != http.StatusFound {
		a.t.Fatalf("login: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestHomePageRenders(t *testing.T) {
	app := newWebApp(t)
	w := app.do(http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "first post") || !strings.Contains(body, "news") {
		t.Fatalf("home page missing content: %s", body)
	}
}

func TestArticlePageRenders(t *testing.T) {
	app := newWebApp(t)
	w := app.do(http.MethodGet, "/article/5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<p>hi</p>") {
		t.Fatal("rendered content missing")
	}
	if !strings.Contains(w.Body.String(), "3") {
		t.Fatal("like count missing")
	}
}

func TestGuardRedirectsAnonymousAdmin(t *testing.T) {
	app := newWebApp(t)
	w := app.do(http.MethodGet, "/admin/articles", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}
}

func TestGuardRedirectsLoggedInAwayFromLogin(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")
	w := app.do(http.MethodGet, "/login", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}
}

func TestLoginAttachesCredentialToBackendCalls(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")

	w := app.do(http.MethodGet, "/admin/articles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list: status %d body %s", w.Code, w.Body.String())
	}
	want := "Basic " + EncodeCredential("admin", "secret")
	if app.backend.lastAuth != want {
		t.Fatalf("backend saw Authorization %q, want %q", app.backend.lastAuth, want)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	app := newWebApp(t)
	app.do(http.MethodGet, "/login", nil)
	w := app.do(http.MethodPost, "/login", url.Values{
		"_csrf":    {app.csrf},
		"username": {"admin"},
		"password": {"wrong"},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
	// Still anonymous: the admin console stays locked.
	w = app.do(http.MethodGet, "/admin/articles", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("expected guard redirect, got %d", w.Code)
	}
}

func TestForcedLogoutOnUnauthenticatedBackend(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")

	app.backend.adminUnauthorized = true
	w := app.do(http.MethodGet, "/admin/articles", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}

	// The credential is gone: the guard now blocks the admin console.
	w = app.do(http.MethodGet, "/admin/articles", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("session survived forced logout: status %d", w.Code)
	}
}

func TestLogoutFlow(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")
	app.do(http.MethodGet, "/", nil) // refresh csrf token after session rotation

	w := app.do(http.MethodPost, "/logout", url.Values{"_csrf": {app.csrf}})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}
	w = app.do(http.MethodGet, "/admin/articles", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("expected guard redirect after logout, got %d", w.Code)
	}
}

func TestSearchPageRenders(t *testing.T) {
	app := newWebApp(t)
	w := app.do(http.MethodGet, "/search?q=first", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "first post") {
		t.Fatalf("search result missing: %s", body)
	}
	if got := app.backend.lastSearch.Get("keyword"); got != "first" {
		t.Fatalf("backend saw keyword %q", got)
	}
}

func TestSearchPageWithoutQuerySkipsBackendSearch(t *testing.T) {
	app := newWebApp(t)
	w := app.do(http.MethodGet, "/search", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if app.backend.lastSearch != nil {
		t.Fatal("search endpoint called without a query")
	}
	// The category filter still renders.
	if !strings.Contains(w.Body.String(), "news") {
		t.Fatal("category filter missing")
	}
}

func TestAccountPageRequiresLogin(t *testing.T) {
	app := newWebApp(t)
	w := app.do(http.MethodGet, "/account", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}
}

func TestAccountPageShowsBackendProfile(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")
	w := app.do(http.MethodGet, "/account", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "admin@example.com") {
		t.Fatal("profile missing")
	}
}

func TestAdminUserCreate(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")

	w := app.do(http.MethodGet, "/admin/users/new", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("form: status %d", w.Code)
	}

	w = app.do(http.MethodPost, "/admin/users", url.Values{
		"_csrf":    {app.csrf},
		"username": {"carol"},
		"password": {"pw"},
		"email":    {"carol@example.com"},
		"role":     {"USER"},
		"status":   {"ACTIVE"},
	})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/admin/users" {
		t.Fatalf("status %d location %q body %s", w.Code, w.Header().Get("Location"), w.Body.String())
	}
	if app.backend.lastUserInput.Username != "carol" || app.backend.lastUserInput.Password != "pw" {
		t.Fatalf("backend saw %+v", app.backend.lastUserInput)
	}
}

func TestAdminUserCreateRequiresUsername(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")
	w := app.do(http.MethodPost, "/admin/users", url.Values{
		"_csrf":    {app.csrf},
		"password": {"pw"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestAdminUserUpdate(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")

	w := app.do(http.MethodGet, "/admin/users/7/edit", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "bob") {
		t.Fatalf("edit form: status %d body %s", w.Code, w.Body.String())
	}

	w = app.do(http.MethodPost, "/admin/users/7", url.Values{
		"_csrf":    {app.csrf},
		"username": {"bob"},
		"email":    {"new@example.com"},
		"role":     {"ADMIN"},
		"status":   {"ACTIVE"},
	})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/admin/users" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}
	if app.backend.lastUserInput.Email != "new@example.com" {
		t.Fatalf("backend saw %+v", app.backend.lastUserInput)
	}
	// Blank password means keep the current one.
	if app.backend.lastUserInput.Password != "" {
		t.Fatalf("password sent unexpectedly: %+v", app.backend.lastUserInput)
	}
}

func TestAdminUserDelete(t *testing.T) {
	app := newWebApp(t)
	app.login("admin", "secret")
	w := app.do(http.MethodPost, "/admin/users/7/delete", url.Values{"_csrf": {app.csrf}})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/admin/users" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}
	if !app.backend.userDeleted {
		t.Fatal("backend never saw the delete")
	}
}

func TestUnauthenticatedLoginStaysOnLoginPage(t *testing.T) {
	app := newWebApp(t)
	app.backend.loginUnauthorized = true
	app.do(http.MethodGet, "/login", nil)
	w := app.do(http.MethodPost, "/login", url.Values{
		"_csrf":    {app.csrf},
		"username": {"admin"},
		"password": {"secret"},
	})
	if loc := w.Header().Get("Location"); loc != "" {
		t.Fatalf("redirected to %q, want the error rendered in place", loc)
	}
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Unauthorized") {
		t.Fatalf("error page missing message: %s", w.Body.String())
	}
}

func TestCrossOriginPostRejected(t *testing.T) {
	app := newWebApp(t)
	app.do(http.MethodGet, "/login", nil)
	w := app.doWithOrigin(http.MethodPost, "/login", "https://evil.example", url.Values{
		"_csrf":    {app.csrf},
		"username": {"admin"},
		"password": {"secret"},
	})
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "origin not allowed") {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestAllowedOriginPostAccepted(t *testing.T) {
	app := newWebApp(t)
	app.do(http.MethodGet, "/login", nil)
	w := app.doWithOrigin(http.MethodPost, "/login", "https://cms.example", url.Values{
		"_csrf":    {app.csrf},
		"username": {"admin"},
		"password": {"secret"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestSameHostOriginPostAccepted(t *testing.T) {
	app := newWebApp(t)
	app.do(http.MethodGet, "/login", nil)
	// httptest requests carry Host example.com.
	w := app.doWithOrigin(http.MethodPost, "/login", "http://example.com", url.Values{
		"_csrf":    {app.csrf},
		"username": {"admin"},
		"password": {"secret"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestCSRFRejectsMissingToken(t *testing.T) {
	app := newWebApp(t)
	app.do(http.MethodGet, "/login", nil)
	w := app.do(http.MethodPost, "/login", url.Values{
		"username": {"admin"},
		"password": {"secret"},
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", w.Code)
	}
}
