// Package prompts holds the per-phase prompt templates the Worker state
// machine feeds to the agent transport, with an environment-variable
// override directory for local experimentation.
package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed templates/*.md
var templateFS embed.FS

// Names of the Worker's phase-keyed prompt templates.
const (
	Plan      = "plan"
	Execute   = "execute"
	Fix       = "fix"
	Review    = "review"
	Escalate  = "escalate"
	Decompose = "decompose"
)

// GetPrompt loads a template by name and substitutes {var} placeholders. An
// override directory named by UNDERCITY_PROMPTS_DIR is checked first, so
// operators can iterate on prompt wording without a rebuild.
func GetPrompt(name string, vars map[string]string) (string, error) {
	var content []byte

	if overrideDir := os.Getenv("UNDERCITY_PROMPTS_DIR"); overrideDir != "" {
		if c, err := os.ReadFile(filepath.Join(overrideDir, name+".md")); err == nil {
			content = c
		}
	}

	if len(content) == 0 {
		c, err := templateFS.ReadFile(filepath.Join("templates", name+".md"))
		if err != nil {
			return "", fmt.Errorf("failed to read prompt template %s: %w", name, err)
		}
		content = c
	}

	prompt := string(content)
	for k, v := range vars {
		prompt = strings.ReplaceAll(prompt, fmt.Sprintf("{%s}", k), v)
	}
	return prompt, nil
}

// ListPrompts returns the names of all embedded prompt templates.
func ListPrompts() ([]string, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	sort.Strings(names)
	return names, nil
}
