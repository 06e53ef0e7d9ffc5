// Package widget renders the call control into host pages and keeps the
// mounted controller in sync with the admin settings.
package widget

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"sync"

	"github.com/yegors/voice-agent/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// StaticFS returns the embedded browser assets (voice-agent.js, voice-agent.css)
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Engine renders the named page templates
type Engine struct {
	templates *template.Template
	mu        sync.RWMutex
	renders   map[string]int
	logger    *logger.Logger
}

// NewEngine parses the embedded templates
func NewEngine(log *logger.Logger) (*Engine, error) {
	tmpl, err := template.New("voice-agent").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Engine{
		templates: tmpl,
		renders:   make(map[string]int),
		logger:    log.Named("template-engine"),
	}, nil
}

// Render executes the named template
func (e *Engine) Render(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %q: %w", name, err)
	}

	e.mu.Lock()
	e.renders[name]++
	e.mu.Unlock()

	e.logger.Debug("Template rendered",
		logger.String("template", name),
		logger.Int("rendered_length", buf.Len()))

	// html/template already escaped the data
	return template.HTML(buf.String()), nil
}

// Stats returns how often each template was rendered
func (e *Engine) Stats() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int, len(e.renders))
	for name, n := range e.renders {
		counts[name] = n
	}
	return map[string]any{
		"render_counts": counts,
	}
}
