package connection

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// WebSocketBase derives the presence server address from the API base
// URL: same host, ws/wss scheme, no path.
//
//	http://127.0.0.1:8080/api/v1 -> ws://127.0.0.1:8080
func WebSocketBase(apiBase string) (string, error) {
	if !strings.Contains(apiBase, "://") {
		apiBase = "http://" + apiBase
	}
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api base url %q has no host", apiBase)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String(), nil
}

// PresenceURL returns the per-identity presence endpoint {wsBase}/ws/{userID}.
func PresenceURL(wsBase string, userID int64) string {
	return strings.TrimRight(wsBase, "/") + "/ws/" + strconv.FormatInt(userID, 10)
}
