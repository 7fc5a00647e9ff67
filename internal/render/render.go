// Package render parses the embedded page templates and executes them with
// the flash message of the browser session.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

const (
	flashKey     = "flash"
	flashTypeKey = "flash_type"
)

// Renderer holds one parsed template set per page.
type Renderer struct {
	templates map[string]*template.Template
	sessions  *scs.SessionManager
}

type Config struct {
	TemplatesFS fs.FS
	// Sessions may be nil; flash messages are then dropped.
	Sessions *scs.SessionManager
}

func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[string]*template.Template),
		sessions:  cfg.Sessions,
	}
	if err := r.parseTemplates(cfg.TemplatesFS); err != nil {
		return nil, err
	}
	return r, nil
}

// parseTemplates builds "pages/<name>" on the base layout and "admin/<name>"
// on the base and admin layouts.
func (r *Renderer) parseTemplates(templatesFS fs.FS) error {
	const (
		baseLayout  = "layouts/base.html"
		adminLayout = "layouts/admin.html"
	)

	groups := []struct {
		dir     string
		layouts []string
	}{
		{"pages", []string{baseLayout}},
		{"admin", []string{baseLayout, adminLayout}},
	}
	for _, g := range groups {
		files, err := templateFiles(templatesFS, g.dir)
		if err != nil {
			return fmt.Errorf("listing %s templates: %w", g.dir, err)
		}
		for _, file := range files {
			name := g.dir + "/" + strings.TrimSuffix(path.Base(file), ".html")
			patterns := append(append([]string{}, g.layouts...), file)
			tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, patterns...)
			if err != nil {
				return fmt.Errorf("parsing template %s: %w", name, err)
			}
			r.templates[name] = tmpl
		}
	}
	return nil
}

func templateFiles(templatesFS fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(templatesFS, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".html") {
			files = append(files, path.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// Has reports whether a page of that name was parsed.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("02/01/2006")
		},
		"formatDatePtr": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("02/01/2006")
		},
		"price": FormatPrice,
		"safe": func(s string) template.HTML {
			return template.HTML(s)
		},
		"sectionName": SectionName,
		"sections": func() []string {
			return types.Sections
		},
		"stores": func() []services.Store {
			return services.Stores
		},
	}
}

// FormatPrice renders a price in Brazilian notation, "R$ 1.234,50".
func FormatPrice(value *float64) string {
	if value == nil {
		return ""
	}
	cents := int64(*value*100 + 0.5)
	reais := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	for i, c := range reais {
		if i > 0 && (len(reais)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	return fmt.Sprintf("R$ %s,%02d", b.String(), cents%100)
}

// SectionName is the display title of a catalog section.
func SectionName(color string) string {
	switch color {
	case types.SectionInfantil:
		return "Mundo Mágico Infantil"
	case types.SectionEmpreendedorismo:
		return "Oficina Criativa"
	case types.SectionCasa:
		return "Lar Doce Lar"
	default:
		return color
	}
}

// TemplateData is what every page receives.
type TemplateData struct {
	Title       string
	Data        any
	Flash       string
	FlashType   string
	CurrentYear int
	SiteName    string
	User        *types.User
	IsAdmin     bool
	// Error is shown above a re-rendered form.
	Error string
	// Form holds the submitted values of a re-rendered form.
	Form map[string]string
}

// Render executes the page into a buffer and writes it with status.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, status int, name string, data TemplateData) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}

	data.CurrentYear = time.Now().Year()
	if data.SiteName == "" {
		data.SiteName = types.DefaultSettings().SiteName
	}
	if r.sessions != nil {
		if flash := r.sessions.PopString(req.Context(), flashKey); flash != "" {
			data.Flash = flash
			data.FlashType = r.sessions.PopString(req.Context(), flashTypeKey)
			if data.FlashType == "" {
				data.FlashType = "info"
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("executing template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// SetFlash stores a one-shot message shown on the next rendered page.
func (r *Renderer) SetFlash(req *http.Request, message, flashType string) {
	if r.sessions == nil {
		return
	}
	r.sessions.Put(req.Context(), flashKey, message)
	r.sessions.Put(req.Context(), flashTypeKey, flashType)
}
