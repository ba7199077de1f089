// Package catalog defines the named high-level operations the tool server
// exposes and renders each invocation into a script body for the plugin
// runtime. The bridge never looks inside these scripts; validation of their
// effect belongs entirely to the remote execution environment.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Kind tells the tool server which bridge operation a tool maps to.
type Kind int

const (
	// KindScript renders the tool's template and runs it via Execute.
	KindScript Kind = iota
	// KindContext maps to GetContext; no script is rendered.
	KindContext
	// KindNotify maps to Notify(message, duration).
	KindNotify
	// KindRaw passes the caller-supplied script through Execute untouched.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindContext:
		return "context"
	case KindNotify:
		return "notify"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Tool is one catalog entry.
type Tool struct {
	Name        string
	Description string
	Kind        Kind

	// InputSchema is the JSON-schema object advertised over tools/list.
	InputSchema map[string]any

	tmpl *template.Template
}

// Catalog is the registry of tools, stable-ordered for listing.
type Catalog struct {
	tools map[string]*Tool
	order []string
}

var templateFuncs = template.FuncMap{
	// json embeds an argument into the script as a JSON literal, so user
	// input can never break out of the script's syntax.
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

// New builds an empty catalog.
func New() *Catalog {
	return &Catalog{tools: make(map[string]*Tool)}
}

// Register adds a tool. scriptBody may be empty for non-script kinds.
func (c *Catalog) Register(tool Tool, scriptBody string) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if _, exists := c.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	if tool.Kind == KindScript {
		if strings.TrimSpace(scriptBody) == "" {
			return fmt.Errorf("tool %q has no script body", tool.Name)
		}
		tmpl, err := template.New(tool.Name).Funcs(templateFuncs).Parse(scriptBody)
		if err != nil {
			return fmt.Errorf("tool %q script template: %w", tool.Name, err)
		}
		tool.tmpl = tmpl
	}
	c.tools[tool.Name] = &tool
	c.order = append(c.order, tool.Name)
	sort.Strings(c.order)
	return nil
}

// Get returns the tool by name.
func (c *Catalog) Get(name string) (*Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// List returns all tools in stable name order.
func (c *Catalog) List() []*Tool {
	out := make([]*Tool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name])
	}
	return out
}

// Render validates args against the tool's schema and produces the script
// body for a KindScript tool.
func (c *Catalog) Render(name string, args map[string]any) (string, error) {
	tool, ok := c.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	if tool.Kind != KindScript {
		return "", fmt.Errorf("tool %q does not render a script", name)
	}
	if err := ValidateArgs(tool, args); err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tool.tmpl.Execute(&sb, args); err != nil {
		return "", fmt.Errorf("render tool %q: %w", name, err)
	}
	return sb.String(), nil
}

// ValidateArgs checks required properties and rejects unknown ones. Deep
// type checking is left to the plugin runtime, which reports real execution
// errors back over the bridge.
func ValidateArgs(tool *Tool, args map[string]any) error {
	required, _ := tool.InputSchema["required"].([]string)
	for _, name := range required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("tool %q: missing required argument %q", tool.Name, name)
		}
	}

	properties, _ := tool.InputSchema["properties"].(map[string]any)
	for name := range args {
		if _, ok := properties[name]; !ok {
			return fmt.Errorf("tool %q: unknown argument %q", tool.Name, name)
		}
	}
	return nil
}
