package server

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
)

const maxRequestBody = 1 << 20

func decodeJSONBody(body io.ReadCloser, dst any) error {
	defer body.Close()
	decoder := json.NewDecoder(io.LimitReader(body, maxRequestBody))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondJSONError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[randomToken] %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// clientIP resolves the caller identity used for rate-limit keys,
// honouring the proxy header a CGI deployment sits behind.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// basePathForRequest recovers whatever prefix the broker is mounted under
// so returned URLs work for any deployment path.
func basePathForRequest(r *http.Request, suffix string) string {
	p := r.URL.Path
	if idx := strings.Index(p, suffix); idx != -1 {
		return strings.TrimSuffix(p[:idx], "/")
	}
	return path.Dir(p)
}

func providerFromCallbackPath(p string) string {
	idx := strings.Index(p, "/callback/")
	if idx == -1 {
		return ""
	}
	return strings.Trim(p[idx+len("/callback/"):], "/")
}

func lastPathComponent(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
