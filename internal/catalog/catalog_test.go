package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCatalog = `developer:
  username: seeder
  email: seeder@example.com
  password: seed-password
agents:
  - name: Resume Reviewer
    type: resume_reviewer
    description: Resume feedback.
    price_per_token: 0.002
  - name: Code Reviewer
    type: code_reviewer
    description: Code review.
    price_per_token: 0.003
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Developer.Username != "seeder" {
		t.Fatalf("developer username = %q", c.Developer.Username)
	}
	if len(c.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(c.Agents))
	}
	if c.Agents[1].Type != "code_reviewer" {
		t.Fatalf("agent type = %q", c.Agents[1].Type)
	}
	if c.Agents[0].PricePerToken != 0.002 {
		t.Fatalf("price = %v", c.Agents[0].PricePerToken)
	}
}

func TestLoadRejectsDuplicateTypes(t *testing.T) {
	dup := strings.ReplaceAll(sampleCatalog, "code_reviewer", "resume_reviewer")
	if _, err := Load(writeCatalog(t, dup)); err == nil {
		t.Fatalf("expected duplicate type error")
	}
}

func TestLoadRejectsMissingPassword(t *testing.T) {
	noPass := strings.Replace(sampleCatalog, "  password: seed-password\n", "", 1)
	if _, err := Load(writeCatalog(t, noPass)); err == nil {
		t.Fatalf("expected missing password error")
	}
}

func TestLoadRejectsNonPositivePrice(t *testing.T) {
	bad := strings.Replace(sampleCatalog, "price_per_token: 0.002", "price_per_token: 0", 1)
	if _, err := Load(writeCatalog(t, bad)); err == nil {
		t.Fatalf("expected price error")
	}
}
