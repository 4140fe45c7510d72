package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// MaxBodyBytes caps JSON request bodies
const MaxBodyBytes = 1 << 20

// ErrEmptyBody is returned by DecodeJSON when the request has no body
var ErrEmptyBody = errors.New("request body is empty")

// IPConfig holds the proxies whose forwarding headers are trusted
type IPConfig struct {
	trusted []*net.IPNet
}

// NewIPConfig parses CIDR ranges of trusted proxies. Bare IPs are accepted as
// single-host ranges.
func NewIPConfig(cidrs []string) (*IPConfig, error) {
	cfg := &IPConfig{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			raw = fmt.Sprintf("%s/%d", raw, bits)
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		cfg.trusted = append(cfg.trusted, ipNet)
	}
	return cfg, nil
}

// ExtractClientIP returns the client address for logging and rate limiting.
// X-Forwarded-For and X-Real-IP are honoured only when the peer is a trusted proxy.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := remoteAddr(r)

	if config == nil || !config.trusts(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, ip := range strings.Split(xff, ",") {
			ip = strings.TrimSpace(ip)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return remoteIP
}

func (c *IPConfig) trusts(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range c.trusted {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// remoteAddr strips the port from RemoteAddr
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// DecodeJSON reads a single JSON object from the request body into dst
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	return nil
}
