package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// templates caches parsed templates by their text. A builder renders the same
// preamble template on every call, so each distinct text parses once.
var templates sync.Map

// funcs are the helpers available inside preamble templates.
var funcs = template.FuncMap{
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = fmt.Sprint(it)
		}
		return strings.Join(parts, sep)
	},
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}
		return v
	},
	"trim":  strings.TrimSpace,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// RenderTemplate renders a text/template against data. Text without template
// markers is returned as-is. Missing map keys are render errors, not
// "<no value>" placeholders.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func parse(text string) (*template.Template, error) {
	if cached, ok := templates.Load(text); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New("render").Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, err
	}
	templates.Store(text, tmpl)
	return tmpl, nil
}
