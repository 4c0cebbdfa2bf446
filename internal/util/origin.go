package util

import (
	"net"
	"net/http"
	"strings"
)

// DefaultOriginHeaders are consulted in order; the first non-empty value wins.
var DefaultOriginHeaders = []string{"CF-Connecting-IP", "True-Client-IP", "X-Real-IP"}

// OriginFromRequest derives the caller origin from reverse-proxy headers.
// When none is set and allowDirect is true the socket address is used.
// It returns "" when no origin can be determined.
func OriginFromRequest(r *http.Request, headers []string, allowDirect bool) string {
	if len(headers) == 0 {
		headers = DefaultOriginHeaders
	}
	for _, h := range headers {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" && v != "undefined" {
			return v
		}
	}
	if !allowDirect {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
