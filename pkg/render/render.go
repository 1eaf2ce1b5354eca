// Package render turns templated notification payloads into an email
// subject, HTML and text body, and an SMS body.
//
// Templates are markdown files named after the job kind
// ("order_notification.md") with YAML frontmatter:
//
//	---
//	subject: "{{.Company.Name}}: your order is {{humanize .Status}}"
//	sms: "Your {{.Car}} is {{humanize .Status}}."
//	---
//	Hello {{.Recipient.Name}},
//	...
//
// The body and both frontmatter fields are text/template sources executed
// with the payload as data. The body is converted to HTML by goldmark and
// wrapped in an html/template layout. Markdown supports a call-to-action
// button: [!button|Label](URL).
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/yuin/goldmark"

	"github.com/PermAdut/autoservice-notify/pkg/notify"
)

//go:embed templates
var embedded embed.FS

// Templates returns the built-in templates.
func Templates() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// DefaultLayout is the layout file used unless WithLayout says otherwise.
const DefaultLayout = "base.html"

// Message is a rendered notification.
type Message struct {
	Subject string
	HTML    string
	// Text is the processed markdown, used as the plain-text email part.
	Text string
	// SMS is a single-paragraph body for text messages.
	SMS string
}

// Renderer renders notification payloads. Parsed templates are cached; it is
// safe for concurrent use.
type Renderer struct {
	fs          fs.FS
	md          goldmark.Markdown
	layout      string
	templateDir string
	layoutDir   string

	mu        sync.RWMutex
	templates map[string]*parsedTemplate
	layouts   map[string]*template.Template
}

type parsedTemplate struct {
	subject *texttemplate.Template
	sms     *texttemplate.Template
	body    *texttemplate.Template
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFS replaces the built-in templates. The FS must hold the templates at
// its root and layouts under "layouts/".
func WithFS(fsys fs.FS) Option {
	return func(r *Renderer) {
		if fsys != nil {
			r.fs = fsys
		}
	}
}

// WithLayout selects the layout file.
func WithLayout(name string) Option {
	return func(r *Renderer) {
		if name != "" {
			r.layout = name
		}
	}
}

// New creates a Renderer over the built-in templates.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		fs:          Templates(),
		layout:      DefaultLayout,
		templateDir: ".",
		layoutDir:   "layouts",
		md:          goldmark.New(goldmark.WithExtensions(buttonExtension{})),
		templates:   make(map[string]*parsedTemplate),
		layouts:     make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var whitespace = regexp.MustCompile(`\s+`)

// Render executes the template for p.Kind() with p as data.
func (r *Renderer) Render(p notify.Payload) (*Message, error) {
	name := string(p.Kind()) + ".md"

	tmpl, err := r.template(name)
	if err != nil {
		return nil, err
	}

	subject, err := execute(tmpl.subject, p)
	if err != nil {
		return nil, err
	}
	subject = strings.TrimSpace(whitespace.ReplaceAllString(subject, " "))

	var markdown bytes.Buffer
	if err := tmpl.body.Execute(&markdown, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	var content bytes.Buffer
	if err := r.md.Convert(markdown.Bytes(), &content); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to convert markdown: %v", ErrRenderFailed, name, err)
	}

	layout, err := r.layoutTemplate(r.layout)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := layout.Execute(&out, map[string]any{
		"Subject": subject,
		"Content": template.HTML(content.String()),
		"Data":    p,
	}); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to execute layout: %v", ErrRenderFailed, r.layout, err)
	}

	text := strings.TrimSpace(plainButtons(markdown.String()))

	sms := text
	if tmpl.sms != nil {
		if sms, err = execute(tmpl.sms, p); err != nil {
			return nil, err
		}
	}

	return &Message{
		Subject: subject,
		HTML:    out.String(),
		Text:    text,
		SMS:     strings.TrimSpace(whitespace.ReplaceAllString(sms, " ")),
	}, nil
}

func execute(t *texttemplate.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRenderFailed, t.Name(), err)
	}
	return b.String(), nil
}

func (r *Renderer) template(name string) (*parsedTemplate, error) {
	r.mu.RLock()
	cached, ok := r.templates[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.templates[name]; ok {
		return cached, nil
	}

	content, err := fs.ReadFile(r.fs, path.Join(r.templateDir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
	}

	doc, err := parseDocument(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	subject, ok := doc.stringField("subject")
	if !ok || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSubject, name)
	}

	parsed := &parsedTemplate{}
	if parsed.subject, err = parse(name+"#subject", subject); err != nil {
		return nil, err
	}
	if sms, ok := doc.stringField("sms"); ok {
		if parsed.sms, err = parse(name+"#sms", sms); err != nil {
			return nil, err
		}
	}
	if parsed.body, err = parse(name, doc.Body); err != nil {
		return nil, err
	}

	r.templates[name] = parsed
	return parsed, nil
}

func parse(name, src string) (*texttemplate.Template, error) {
	t, err := texttemplate.New(name).Funcs(funcs()).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}
	return t, nil
}

func (r *Renderer) layoutTemplate(name string) (*template.Template, error) {
	r.mu.RLock()
	cached, ok := r.layouts[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.layouts[name]; ok {
		return cached, nil
	}

	content, err := fs.ReadFile(r.fs, path.Join(r.layoutDir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLayoutNotFound, name, err)
	}

	t, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	r.layouts[name] = t
	return t, nil
}
