package generation

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var promptFiles embed.FS

// PromptTemplate pairs a model with the template rendered for it
type PromptTemplate struct {
	Model    string `yaml:"model"`
	Template string `yaml:"template"`

	tmpl *template.Template
}

type Prompts struct {
	Create PromptTemplate `yaml:"create"`
	Edit   PromptTemplate `yaml:"edit"`
}

type createData struct {
	Prompt string
}

type editData struct {
	Document    string
	Instruction string
}

// LoadPrompts parses the embedded prompt file
func LoadPrompts() (*Prompts, error) {
	data, err := promptFiles.ReadFile("prompts/prompts.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}

	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	for name, pt := range map[string]*PromptTemplate{"create": &p.Create, "edit": &p.Edit} {
		if pt.Model == "" || strings.TrimSpace(pt.Template) == "" {
			return nil, fmt.Errorf("prompt %q is missing a model or template", name)
		}
		pt.tmpl, err = template.New(name).Option("missingkey=error").Parse(pt.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt: %w", name, err)
		}
	}

	return &p, nil
}

func (pt *PromptTemplate) render(data any) (string, error) {
	var sb strings.Builder
	if err := pt.tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (p *Prompts) RenderCreate(prompt string) (string, error) {
	return p.Create.render(createData{Prompt: prompt})
}

func (p *Prompts) RenderEdit(document, instruction string) (string, error) {
	return p.Edit.render(editData{Document: document, Instruction: instruction})
}
