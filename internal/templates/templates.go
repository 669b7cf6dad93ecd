// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates holds the server-rendered pages. Each page is an
// html/template sharing the base layout and is exposed as a templ component.
package templates

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"

	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"codeberg.org/oliverandrich/go-authflow/internal/models"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"github.com/a-h/templ"
)

//go:embed html/*.html
var files embed.FS

// Page names.
const (
	PageHome      = "home"
	PageRegister  = "register"
	PageLogin     = "login"
	PageDashboard = "dashboard"
	PageProfile   = "profile"
	PageProjects  = "projects"
	PageContact   = "contact"
	PageSkills    = "skills"
	PageForgot    = "forgot_password"
	PageReset     = "reset_password"
	PageError     = "error"
)

var pages = mustParse(
	PageHome, PageRegister, PageLogin, PageDashboard,
	PageProfile, PageProjects, PageContact, PageSkills,
	PageForgot, PageReset, PageError,
)

func mustParse(names ...string) map[string]*template.Template {
	parsed := make(map[string]*template.Template, len(names))
	for _, name := range names {
		set := template.Must(template.New("").ParseFS(files, "html/base.html", "html/"+name+".html"))
		parsed[name] = set.Lookup("base.html")
	}
	return parsed
}

// Page is the data every template receives.
type Page struct { //nolint:govet // fieldalignment: readability over optimization
	ctx context.Context

	Name      string
	Title     string // translation key
	CSRFToken string
	Locale    string
	User      *models.User
	Flash     *session.Flash

	// Token is the link token a reset form posts back to.
	Token string
	// PasswordRules lists the active password policy.
	PasswordRules []string
	// Status and Message describe an error page.
	Status  int
	Message string
}

// NewPage prepares a page with the request-scoped values found in ctx.
func NewPage(ctx context.Context, name, title string) *Page {
	return &Page{
		ctx:       ctx,
		Name:      name,
		Title:     title,
		CSRFToken: CSRFToken(ctx),
		Locale:    Locale(ctx),
		User:      GetUser(ctx),
		Flash:     GetFlash(ctx),
	}
}

// T translates a message by ID.
func (p *Page) T(messageID string) string {
	return i18n.T(p.ctx, messageID)
}

// TData translates a message with alternating key/value template data.
func (p *Page) TData(messageID string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			data[key] = kv[i+1]
		}
	}
	return i18n.TData(p.ctx, messageID, data)
}

// Authenticated reports whether a user is logged in.
func (p *Page) Authenticated() bool {
	return p.User != nil
}

// Component returns the page as a templ component.
func (p *Page) Component() templ.Component {
	tmpl, ok := pages[p.Name]
	if !ok {
		return templ.ComponentFunc(func(context.Context, io.Writer) error {
			return fmt.Errorf("unknown page %q", p.Name)
		})
	}
	return templ.FromGoHTML(tmpl, p)
}
