package main

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"
)

// TemplateStatementGenerator renders query templates with text/template.
// Benchmark variables are available by name, plus "benchmark" and "sequence".
type TemplateStatementGenerator struct {
	templates sync.Map
}

func (g *TemplateStatementGenerator) Generate(query Query, benchmark *Benchmark, sequence int) (string, error) {
	parsed, err := g.parse(query.SqlTemplate)
	if err != nil {
		return "", err
	}
	data := make(map[string]any, len(benchmark.Variables)+2)
	for key, value := range benchmark.Variables {
		data[key] = value
	}
	data["benchmark"] = benchmark.UniqueName()
	data["sequence"] = sequence

	var buffer bytes.Buffer
	if err := parsed.Execute(&buffer, data); err != nil {
		return "", fmt.Errorf("failed to render %v: %w", query.Name, err)
	}
	return buffer.String(), nil
}

func (g *TemplateStatementGenerator) parse(text string) (*template.Template, error) {
	if cached, ok := g.templates.Load(text); ok {
		return cached.(*template.Template), nil
	}
	parsed, err := template.New("query").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, err
	}
	g.templates.Store(text, parsed)
	return parsed, nil
}
