package swarm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderComposeEmbeddedDefault(t *testing.T) {
	tmpl, err := LoadComposeTemplate("")
	require.NoError(t, err)

	out, err := RenderCompose(tmpl, StackParams{
		TenantID:    "abc123def456",
		Subdomain:   "acme-debates",
		SecretKey:   "s3cr3t",
		DBName:      "nekotab_abc123def456",
		DBUser:      "tenant_abc123def456",
		DBPassword:  "pw",
		Domain:      "nekotab.app",
		RegistryURL: "ghcr.io/nekotab",
		ImageTag:    "v1.2.3",
		CPULimit:    "1.0",
		MemoryLimit: "512M",
	})
	require.NoError(t, err)

	rendered := string(out)
	require.Contains(t, rendered, "ghcr.io/nekotab/nekotab:v1.2.3")
	require.Contains(t, rendered, "acme-debates.nekotab.app")
	require.Contains(t, rendered, "postgres://tenant_abc123def456:pw@postgres-master:5432/nekotab_abc123def456")
	require.Contains(t, rendered, `cpus: "1.0"`)
	require.Contains(t, rendered, "memory: 512M")
}

func TestRenderComposeRejectsUnknownFields(t *testing.T) {
	_, err := RenderCompose("image: {{.NoSuchField}}", StackParams{})
	require.Error(t, err)
}
