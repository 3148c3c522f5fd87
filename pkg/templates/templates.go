package templates

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// Template names
const (
	Dashboard = "dashboard"
)

//go:embed dashboard.html
var dashboardHTML string

var builtin = map[string]string{
	Dashboard: dashboardHTML,
}

// LogRow is one activity log line on the dashboard.
type LogRow struct {
	Time  time.Time
	Type  string
	Msg   string
	Extra map[string]any
}

// DashboardData holds the values rendered by the dashboard template.
type DashboardData struct {
	ReplyText string
	SentCount int
	LogCount  int
	Logs      []LogRow
	Password  string
}

var funcs = template.FuncMap{
	"json": func(v any) string {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	},
	"timefmt": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}

// GetTemplatePaths returns the search paths for template overrides
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".html"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "commentdm", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// An override is loaded from the filesystem in the following order,
// falling back to the embedded copy:
// 1. ./templates/<name>.html
// 2. ./config/templates/<name>.html
// 3. /etc/commentdm/templates/<name>.html
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	return builtin[name], nil
}

// Render renders a template with html/template, so every value is escaped
// for its HTML context.
func Render(templateName string, data any) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// RenderDashboard renders the admin dashboard.
func RenderDashboard(data DashboardData) (string, error) {
	return Render(Dashboard, data)
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{Dashboard}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	_, ok := builtin[name]
	return ok
}
