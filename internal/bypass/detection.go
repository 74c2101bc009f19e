package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the slice of an HTTP response the detectors look at.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Signature describes how one bot-protection vendor shows up in a blocked
// response. A response matches when its status is listed and any one of the
// server, header or body markers is present. Body markers listed in AllBody
// must all be present together.
type Signature struct {
	Vendor   string
	Statuses []int
	Server   []string // lowercase substrings of the Server header
	Headers  []string // header names whose presence is conclusive
	AnyBody  [][]byte
	AllBody  [][]byte
}

// DefaultSignatures covers the vendors commonly fronting chart publishers.
var DefaultSignatures = []Signature{
	{
		Vendor:   "Cloudflare",
		Statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		Server:   []string{"cloudflare"},
		AnyBody: [][]byte{
			[]byte("cf-browser-verification"),
			[]byte("cloudflare-nginx"),
			[]byte("cf-turnstile"),
			[]byte("Attention Required! | Cloudflare"),
		},
	},
	{
		Vendor:   "Akamai",
		Statuses: []int{http.StatusForbidden},
		Server:   []string{"akamai"},
		AllBody:  [][]byte{[]byte("Reference #"), []byte("Access Denied")},
	},
	{
		Vendor:   "DataDome",
		Statuses: []int{http.StatusForbidden},
		Server:   []string{"datadome"},
		Headers:  []string{"X-DataDome", "X-DataDome-Response"},
		AnyBody:  [][]byte{[]byte("geo.captcha-delivery.com"), []byte("datadome")},
	},
	{
		Vendor:   "PerimeterX",
		Statuses: []int{http.StatusForbidden},
		Headers:  []string{"X-Px-Captcha"},
		AnyBody: [][]byte{
			[]byte("client.perimeterx.net"),
			[]byte("px-captcha"),
			[]byte("_pxBlock"),
		},
	},
}

// Analyze returns the vendor of the first signature matching r, or false
// when the response looks like ordinary content.
func Analyze(r Response, signatures []Signature) (bool, string) {
	for _, sig := range signatures {
		if sig.Match(r) {
			return true, sig.Vendor
		}
	}
	return false, ""
}

// Match reports whether r carries this signature.
func (s Signature) Match(r Response) bool {
	statusHit := false
	for _, code := range s.Statuses {
		if r.StatusCode == code {
			statusHit = true
			break
		}
	}
	if !statusHit {
		return false
	}

	server := strings.ToLower(r.Header.Get("Server"))
	for _, marker := range s.Server {
		if server != "" && strings.Contains(server, marker) {
			return true
		}
	}
	for _, name := range s.Headers {
		if r.Header.Get(name) != "" {
			return true
		}
	}
	for _, marker := range s.AnyBody {
		if bytes.Contains(r.Body, marker) {
			return true
		}
	}
	if len(s.AllBody) > 0 {
		for _, marker := range s.AllBody {
			if !bytes.Contains(r.Body, marker) {
				return false
			}
		}
		return true
	}
	return false
}
