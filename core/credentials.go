package core

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
)

const sessionName = "cms_auth"
const sessionMaxAge = 18000 // 5h

// Credential is the identity of a logged-in browser session: the username,
// an opaque basic-auth token, and the role reported by the backend.
type Credential struct {
	Username   string
	Credential string
	Role       string
}

// IsZero reports whether the credential represents an anonymous session.
func (c Credential) IsZero() bool { return c.Credential == "" }

// IsAdmin reports whether the session carries the admin role.
func (c Credential) IsAdmin() bool { return c.Role == "ADMIN" }

// AuthHeader returns the Authorization header value derived from the token,
// or the empty string for an anonymous session.
func (c Credential) AuthHeader() string {
	if c.Credential == "" {
		return ""
	}
	return "Basic " + c.Credential
}

// EncodeCredential builds the opaque "username:secret" token the backend's
// basic-auth scheme expects. This is a transport encoding, not a security
// boundary: the secret is recoverable.
func EncodeCredential(username, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + secret))
}

// DecodeCredential recovers username and secret from an encoded token.
func DecodeCredential(token string) (username, secret string, err error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(string(b), ":", 2)
	if len(parts) != 2 {
		return "", "", errors.New("credential token missing separator")
	}
	return parts[0], parts[1], nil
}

// CredentialStore keeps the Credential in a signed and encrypted session
// cookie. One explicitly constructed instance is shared by the router, the
// route guard and the API client wiring, so every reader observes the same
// state.
type CredentialStore struct {
	cfg   Config
	store *sessions.CookieStore
}

func NewCredentialStore(cfg Config, store *sessions.CookieStore) *CredentialStore {
	return &CredentialStore{cfg: cfg, store: store}
}

// Login encodes username:secret, builds the Credential and persists it in
// the session cookie. This is a pure local transition: the caller pairs it
// with a prior successful authentication check against the backend.
func (s *CredentialStore) Login(w http.ResponseWriter, r *http.Request, username, secret, role string) error {
	if role == "" {
		role = "USER"
	}
	sess, _ := s.store.Get(r, sessionName)

	// reset session values (simple rotation)
	sess.Values = map[interface{}]interface{}{}
	sess.Values["username"] = username
	sess.Values["credential"] = EncodeCredential(username, secret)
	sess.Values["role"] = role
	applySessionOptions(s.cfg, sess)

	return sess.Save(r, w)
}

// Logout clears the session and deletes the cookie. Idempotent: logging out
// an anonymous session is a no-op apart from the expired cookie.
func (s *CredentialStore) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.store.Get(r, sessionName)
	sess.Values = map[interface{}]interface{}{}
	applySessionOptions(s.cfg, sess)
	sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
	return sess.Save(r, w)
}

// Current returns the Credential held by the request's session. Malformed or
// undecodable session data is treated as an anonymous session, never as an
// error.
func (s *CredentialStore) Current(r *http.Request) Credential {
	sess, err := s.store.Get(r, sessionName)
	if err != nil || sess == nil {
		return Credential{}
	}
	username, _ := sess.Values["username"].(string)
	token, _ := sess.Values["credential"].(string)
	role, _ := sess.Values["role"].(string)
	if username == "" || token == "" {
		return Credential{}
	}
	return Credential{Username: username, Credential: token, Role: role}
}

// IsLoggedIn reports whether the request carries a credential.
func (s *CredentialStore) IsLoggedIn(r *http.Request) bool {
	return !s.Current(r).IsZero()
}

// AuthHeader returns the Authorization value for the request's session, or
// "" when anonymous.
func (s *CredentialStore) AuthHeader(r *http.Request) string {
	return s.Current(r).AuthHeader()
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
