package ai

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

// Prompt is a versioned prompt artifact: a fixed system instruction and a
// user message template rendered per request.
type Prompt struct {
	Name        string  `yaml:"name"`
	Version     string  `yaml:"version"`
	Temperature float64 `yaml:"temperature"`
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`

	user *template.Template
}

// LoadPrompt reads prompts/<name>.yaml from the embedded set.
func LoadPrompt(name string) (*Prompt, error) {
	data, err := promptFS.ReadFile(path.Join("prompts", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("load prompt %q: %w", name, err)
	}
	return ParsePrompt(data)
}

func ParsePrompt(data []byte) (*Prompt, error) {
	var p Prompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompt: %w", err)
	}
	if p.System == "" || p.User == "" {
		return nil, fmt.Errorf("prompt %q: system and user sections are required", p.Name)
	}

	tmpl, err := template.New(p.Name).Option("missingkey=error").Parse(p.User)
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", p.Name, err)
	}
	p.user = tmpl
	return &p, nil
}

// Render executes the user template with data.
func (p *Prompt) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.user.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", p.Name, err)
	}
	return buf.String(), nil
}
