package middleware

import (
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// AllowedOriginsEnv names the environment variable carrying the comma-separated
// origin allow-list.
const AllowedOriginsEnv = "ALLOWED_ORIGINS"

// OriginGuard rejects requests whose Origin header is present and not in the
// allow-list derived from ALLOWED_ORIGINS plus the request's own Host header.
// Any failure inside the check itself passes the request through: this guard
// is deliberately fail-open, matching the documented behaviour of the login
// flow, and must not be hardened to fail-closed without sign-off.
func OriginGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if originAllowed(c) {
			c.Next()
			return
		}
		response.Error(c, errors.ErrOriginRejected)
		c.Abort()
	}
}

func originAllowed(c *gin.Context) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			allowed = true
		}
	}()

	origin := strings.TrimSpace(c.GetHeader("Origin"))
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		// Malformed Origin header; the check cannot be evaluated.
		return true
	}

	normalized := strings.ToLower(parsed.Scheme + "://" + parsed.Host)

	for _, candidate := range allowList(c.Request.Host) {
		if normalized == candidate {
			return true
		}
	}
	return false
}

func allowList(requestHost string) []string {
	var list []string

	for _, entry := range strings.Split(os.Getenv(AllowedOriginsEnv), ",") {
		entry = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(entry, "/")))
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "://") {
			list = append(list, "http://"+entry, "https://"+entry)
			continue
		}
		list = append(list, entry)
	}

	host := strings.ToLower(strings.TrimSpace(requestHost))
	if host != "" {
		list = append(list, "http://"+host, "https://"+host)
	}

	return list
}
