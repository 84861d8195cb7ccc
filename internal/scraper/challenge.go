package scraper

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector examines a page to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(p *Page) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs p through detectors, records the first hit on p and reports
// whether any fired.
func Detect(p *Page, detectors []Detector) bool {
	if p == nil {
		return false
	}
	for _, d := range detectors {
		if detected, source := d(p); detected {
			p.Challenged = true
			p.ChallengeSource = source
			return true
		}
	}
	p.Challenged = false
	p.ChallengeSource = ""
	return false
}

func detectCloudflare(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Headers.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if containsAny(p.Body, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Headers.Get("Server")), "akamai") {
		return true, "Akamai"
	}
	// generic "Access Denied ... Reference #" block page
	if bytes.Contains(p.Body, []byte("Reference #")) && bytes.Contains(p.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Headers.Get("Server")), "datadome") ||
		p.Headers.Get("X-DataDome") != "" || p.Headers.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if containsAny(p.Body, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if p.Headers.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if containsAny(p.Body, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

func containsAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}
