package serp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is returned for any non-2xx response from the search API.
type StatusError struct {
	Code int
	// Reason is a short classification such as "rate limited" or
	// "blocked by Cloudflare".
	Reason string
	// Message is the provider's own error text, when it sent one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("serp: HTTP %d %s: %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("serp: HTTP %d %s", e.Code, e.Reason)
}

type response struct {
	code   int
	header http.Header
	body   []byte
}

// blockDetector reports whether an edge network in front of the API rejected
// the request, and names it.
type blockDetector func(r response) (bool, string)

var blockDetectors = []blockDetector{
	detectCloudflare,
	detectAkamai,
	detectDataDome,
	detectPerimeterX,
}

func newStatusError(code int, header http.Header, body []byte) *StatusError {
	r := response{code: code, header: header, body: body}
	for _, d := range blockDetectors {
		if ok, src := d(r); ok {
			return &StatusError{Code: code, Reason: "blocked by " + src}
		}
	}

	msg := apiMessage(body)
	lower := strings.ToLower(msg)

	var reason string
	switch {
	case strings.Contains(lower, "run out of searches") || strings.Contains(lower, "plan searches"):
		reason = "quota exhausted"
	case code == http.StatusUnauthorized || strings.Contains(lower, "invalid api key"):
		reason = "invalid api key"
	case code == http.StatusTooManyRequests:
		reason = "rate limited"
	case code >= 500:
		reason = "server error"
	default:
		reason = strings.ToLower(http.StatusText(code))
		if reason == "" {
			reason = "unexpected status"
		}
	}
	return &StatusError{Code: code, Reason: reason, Message: msg}
}

func apiMessage(body []byte) string {
	var v struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	return strings.TrimSpace(v.Error)
}

func detectCloudflare(r response) (bool, string) {
	if r.code != http.StatusForbidden && r.code != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(r.header.Get("Server")), "cloudflare") && r.header.Get("Cf-Mitigated") != "" {
		return true, "Cloudflare"
	}
	if bytes.Contains(r.body, []byte("cf-browser-verification")) ||
		bytes.Contains(r.body, []byte("cf-turnstile")) ||
		bytes.Contains(r.body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(r response) (bool, string) {
	if r.code != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(r.header.Get("Server")), "akamai") {
		return true, "Akamai"
	}
	// generic "Reference #" block page
	if bytes.Contains(r.body, []byte("Reference #")) && bytes.Contains(r.body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(r response) (bool, string) {
	if r.code != http.StatusForbidden {
		return false, ""
	}
	if r.header.Get("X-DataDome") != "" || r.header.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(r.body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(r response) (bool, string) {
	if r.code != http.StatusForbidden {
		return false, ""
	}
	if r.header.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bytes.Contains(r.body, []byte("client.perimeterx.net")) ||
		bytes.Contains(r.body, []byte("px-captcha")) ||
		bytes.Contains(r.body, []byte("_pxBlock")) {
		return true, "PerimeterX"
	}
	return false, ""
}
