package core

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const requestIDHeader = "X-Request-Id"
const csrfField = "_csrf"

// RequestIDMiddleware tags every request with a uuid, echoed in the response
// header and available to handlers for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// OriginRefererMiddleware validates the Origin (falling back to Referer) of
// unsafe requests. Form posts from this host or from cfg.AllowedOrigins pass;
// anything else is rejected before the handler runs. Requests without either
// header are same-origin navigation and pass too.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			if referer := c.GetHeader("Referer"); referer != "" {
				if u, err := url.Parse(referer); err == nil && u.Host != "" {
					origin = u.Scheme + "://" + u.Host
				}
			}
		}
		if origin == "" {
			c.Next()
			return
		}

		if u, err := url.Parse(origin); err == nil && u.Host == c.Request.Host {
			c.Next()
			return
		}
		if _, ok := allowed[strings.ToLower(origin)]; ok {
			c.Next()
			return
		}
		c.String(http.StatusForbidden, "origin not allowed")
		c.Abort()
	}
}

// CSRFMiddleware issues and validates a per-session CSRF token. Unsafe
// methods must carry the token in the _csrf form field or the X-CSRF-Token
// header; pages render it into their forms via the csrf_token context key.
func CSRFMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil {
			// Undecodable cookie: start over with a fresh session rather
			// than locking the browser out.
			session, _ = store.New(c.Request, sessionName)
		}

		token, _ := session.Values["csrf_token"].(string)
		if token == "" {
			token, err = generateCSRFToken()
			if err != nil {
				c.String(http.StatusInternalServerError, "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values["csrf_token"] = token
			applySessionOptions(cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				c.String(http.StatusInternalServerError, "failed to persist session")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) {
			supplied := c.PostForm(csrfField)
			if supplied == "" {
				supplied = c.GetHeader("X-CSRF-Token")
			}
			if supplied == "" || supplied != token {
				c.String(http.StatusForbidden, "invalid csrf token")
				c.Abort()
				return
			}
		}

		// Expose token so pages and API callers can reuse it.
		c.Set("csrf_token", token)
		c.Writer.Header().Set("X-CSRF-Token", token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
