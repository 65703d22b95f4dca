package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Property Alert]
Device: {{.Device}}
Reading: {{.ReadingType}}
Trigger Value: {{.TriggerValue}}
Threshold: {{.Threshold}}
Time: {{.Time}}
{{.Message}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Device       string
	DeviceID     string
	ReadingType  string
	Condition    string
	TriggerValue string
	Threshold    string
	Time         string
	Message      string
	Event        string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
