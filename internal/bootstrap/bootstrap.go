package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentmart/agentmart/internal/config"
)

// InitOptions configures scaffolding of a marketplace deployment directory.
type InitOptions struct {
	Root          string
	Environment   string
	HTTPAddress   string
	DatabaseURL   string
	AuthSecret    string
	Model         string
	WriteCatalog  bool
	Force         bool
}

// Init scaffolds configuration files for the marketplace.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	marketPath := filepath.Join(opts.Root, "config", opts.Environment, "marketplace.ini")
	if err := writeFile(marketPath, marketplaceTemplate(opts), opts.Force); err != nil {
		return err
	}

	if opts.WriteCatalog {
		catalogPath := filepath.Join(opts.Root, "config", "catalog.yaml")
		if err := writeFile(catalogPath, catalogTemplate(), opts.Force); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.HTTPAddress) == "" {
		opts.HTTPAddress = ":8080"
	}
	if strings.TrimSpace(opts.DatabaseURL) == "" {
		opts.DatabaseURL = config.DefaultDatabasePath()
	}
	if strings.TrimSpace(opts.AuthSecret) == "" {
		opts.AuthSecret = "change-me"
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = "gpt-4-turbo-preview"
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# AgentMart settings
environment=%s
`, opts.Environment)
}

func marketplaceTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
http_address=%s
database_url=%s
auth_secret=%s
completion_model=%s
log_level=info
# Separate log files (CLI and daemon). Dash '-' disables file output.
log_file_cli=logs/agentmart-cli.log
log_file_daemon=logs/agentmartd.log
`, opts.Environment, opts.HTTPAddress, opts.DatabaseURL, opts.AuthSecret, opts.Model)
}

func catalogTemplate() string {
	return `# Seed catalog consumed by 'agentmart seed'.
developer:
  username: agentmart
  email: agents@agentmart.dev
  password: change-me-please
agents:
  - name: Resume Reviewer
    type: resume_reviewer
    description: Detailed resume feedback with strengths and improvements.
    price_per_token: 0.002
  - name: Code Reviewer
    type: code_reviewer
    description: Correctness, efficiency and style review for code snippets.
    price_per_token: 0.003
  - name: Interview Prep Coach
    type: interview_prep
    description: Realistic interview questions with preparation guidance.
    price_per_token: 0.002
  - name: Writing Assistant
    type: writing_assistant
    description: Grammar, clarity and style improvements for any text.
    price_per_token: 0.001
  - name: Technical Troubleshooter
    type: technical_troubleshooter
    description: Step-by-step diagnosis for technical problems.
    price_per_token: 0.002
`
}

// Validate ensures required fields are present without modifying files.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	if strings.TrimSpace(opts.Environment) == "" {
		return errors.New("environment is required")
	}
	if strings.ContainsAny(opts.Environment, "/\\") {
		return errors.New("environment must not contain path separators")
	}
	return nil
}
