package core

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const loginPath = "/login"
const registerPath = "/register"
const adminPathPrefix = "/admin"

// GuardDecision decides what a navigation to path may do given the login
// state. It returns the redirect target and false when the navigation must
// be redirected, or "" and true when it is allowed. Pure function, no side
// effects.
func GuardDecision(path string, loggedIn bool) (string, bool) {
	if loggedIn && (path == loginPath || path == registerPath) {
		return "/", false
	}
	if !loggedIn && isAdminPath(path) {
		return loginPath, false
	}
	return "", true
}

func isAdminPath(path string) bool {
	return path == adminPathPrefix || strings.HasPrefix(path, adminPathPrefix+"/")
}

// RouteGuard applies GuardDecision before every page navigation, reading the
// login state from the credential store.
func RouteGuard(creds *CredentialStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, ok := GuardDecision(c.Request.URL.Path, creds.IsLoggedIn(c.Request))
		if !ok {
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Next()
	}
}
