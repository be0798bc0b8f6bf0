package util

import (
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
)

const APIKeyHeader = "X-API-Key"

// VerifyAPIKey accepts the key as a bearer token, as the password of basic
// auth, or in the X-API-Key header.
func VerifyAPIKey(r *http.Request, apiKey string) bool {
	if apiKey == "" {
		return false
	}

	password, ok := credential(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(apiKey)) == 1
}

func credential(r *http.Request) (string, bool) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key, true
	}

	auth := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(auth, "Bearer "):
		return strings.TrimPrefix(auth, "Bearer "), true
	case strings.HasPrefix(auth, "Basic "):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
		if err != nil {
			return "", false
		}
		_, password, found := strings.Cut(string(decoded), ":")
		return password, found
	}
	return "", false
}

func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return r.RemoteAddr
	}
	return host
}

func IsLocalhost(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	return parsedIP.IsLoopback()
}
