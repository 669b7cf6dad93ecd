// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package htmx reads htmx request headers and answers with htmx-aware redirects.
package htmx

import (
	"net/http"
)

// Request headers.
const (
	HeaderRequest    = "HX-Request"
	HeaderBoosted    = "HX-Boosted"
	HeaderCurrentURL = "HX-Current-URL"
	HeaderTarget     = "HX-Target"
)

// HeaderRedirect is the response header for client-side redirects.
const HeaderRedirect = "HX-Redirect"

// Request contains information about an htmx request.
type Request struct { //nolint:govet // fieldalignment not critical
	// IsHtmx is true if the HX-Request header is "true".
	IsHtmx bool

	// IsBoosted is true for requests made by hx-boost links and forms.
	IsBoosted bool

	CurrentURL string
	Target     string
}

// ParseRequest extracts htmx information from request headers.
func ParseRequest(r *http.Request) *Request {
	return &Request{
		IsHtmx:     r.Header.Get(HeaderRequest) == "true",
		IsBoosted:  r.Header.Get(HeaderBoosted) == "true",
		CurrentURL: r.Header.Get(HeaderCurrentURL),
		Target:     r.Header.Get(HeaderTarget),
	}
}

// Partial reports whether the request asks for a fragment rather than a
// full page. Boosted requests still swap the whole body.
func (r *Request) Partial() bool {
	return r.IsHtmx && !r.IsBoosted
}

// Redirect sends the client to url. Partial htmx requests get an HX-Redirect
// header so the browser performs a full navigation; everything else gets a
// 303 See Other, which turns a form POST into a GET.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	if ParseRequest(r).Partial() {
		w.Header().Set(HeaderRedirect, url)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
