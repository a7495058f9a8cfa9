package swarm

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"
)

//go:embed templates/tenant-compose.yml.tmpl
var defaultComposeTemplate string

// StackParams fills the tenant compose template.
type StackParams struct {
	TenantID    string
	Subdomain   string
	SecretKey   string
	DBName      string
	DBUser      string
	DBPassword  string
	Domain      string
	RegistryURL string
	ImageTag    string
	CPULimit    string
	MemoryLimit string
}

// LoadComposeTemplate reads a template override from disk, or returns the
// embedded default when path is empty.
func LoadComposeTemplate(path string) (string, error) {
	if path == "" {
		return defaultComposeTemplate, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read compose template: %w", err)
	}
	return string(raw), nil
}

// RenderCompose produces a stack definition from the template and params.
func RenderCompose(tmpl string, p StackParams) ([]byte, error) {
	t, err := template.New("compose").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse compose template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render compose template: %w", err)
	}
	return buf.Bytes(), nil
}
