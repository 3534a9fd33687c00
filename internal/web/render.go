// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package web

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"

	"github.com/samber/oops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// View names understood by the renderer.
const (
	ViewHome     = "home"
	ViewRegister = "register"
	ViewLogin    = "login"
	ViewList     = "list"
	ViewError    = "error"
)

var views = []string{ViewHome, ViewRegister, ViewLogin, ViewList, ViewError}

// Renderer turns a view name and its data into markup.
type Renderer interface {
	Render(w io.Writer, view string, data any) error
}

// TemplateRenderer renders the embedded html/template views. Each view is
// parsed together with the shared layout.
type TemplateRenderer struct {
	views map[string]*template.Template
}

// NewTemplateRenderer parses every embedded view.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	r := &TemplateRenderer{views: make(map[string]*template.Template, len(views))}
	for _, name := range views {
		tmpl, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, oops.Code("RENDER_PARSE_FAILED").With("view", name).Wrap(err)
		}
		r.views[name] = tmpl
	}
	return r, nil
}

// Render executes view into w. Output is buffered so that a failing
// template writes nothing.
func (r *TemplateRenderer) Render(w io.Writer, view string, data any) error {
	tmpl, ok := r.views[view]
	if !ok {
		return oops.Code("RENDER_UNKNOWN_VIEW").With("view", view).Errorf("unknown view %q", view)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return oops.Code("RENDER_FAILED").With("view", view).Wrap(err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return oops.Code("RENDER_FAILED").With("view", view).Wrap(err)
	}
	return nil
}

func staticFiles() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}

// listView is the data for the list view.
type listView struct {
	Username string
	Items    []itemView
}

type itemView struct {
	ID   string
	Name string
}
