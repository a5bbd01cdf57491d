package bypass

import (
	"bytes"
	"net/http"
)

// Response is the part of a fetched page the detectors look at.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector examines a response and reports whether the engine (or a CDN in
// front of it) answered with a challenge instead of a results page.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the standard list of challenge detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectBingChallenge,
		detectRateLimited,
		detectCloudflare,
		detectAkamai,
	}
}

// Analyze runs the response through detectors and returns the first source
// that matched. Nothing here tries to solve a challenge; callers only log it.
func Analyze(res *Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return true, source
		}
	}
	return false, ""
}

// detectBingChallenge matches the engine's own CAPTCHA interstitial.
func detectBingChallenge(res *Response) (bool, string) {
	if bytes.Contains(res.Body, []byte("/turing/captcha")) ||
		bytes.Contains(res.Body, []byte(`id="b_captcha"`)) ||
		bytes.Contains(res.Body, []byte("Please solve the challenge below to continue")) {
		return true, "BingChallenge"
	}
	return false, ""
}

func detectRateLimited(res *Response) (bool, string) {
	if res.StatusCode == http.StatusTooManyRequests {
		return true, "RateLimited"
	}
	return false, ""
}

func detectCloudflare(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if bytes.Contains(bytes.ToLower([]byte(res.Headers.Get("Server"))), []byte("cloudflare")) {
		return true, "Cloudflare"
	}
	if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(res.Body, []byte("cf-turnstile")) ||
		bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if bytes.Contains(bytes.ToLower([]byte(res.Headers.Get("Server"))), []byte("akamai")) {
		return true, "Akamai"
	}
	// Generic "Reference #" block page
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}
