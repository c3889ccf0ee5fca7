package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
)

// Artifact is the persisted debug document for one run, written on both
// completion and abort.
type Artifact struct {
	Context map[string]any      `json:"context"`
	Log     []contractx.Attempt `json:"log"`
}

// ArtifactName is deterministic per run date so a rerun for the same date
// overwrites its predecessor.
func ArtifactName(c *Context) string {
	return fmt.Sprintf("pipeline_context_%s.json", c.RunDate.Format("20060102"))
}

// WriteArtifact serialises the full context plus execution log under dir and
// returns the written path.
func WriteArtifact(dir string, c *Context) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	doc := Artifact{
		Context: c.Values(),
		Log:     c.Log(),
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal pipeline context: %w", err)
	}

	path := filepath.Join(dir, ArtifactName(c))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write pipeline context: %w", err)
	}
	return path, nil
}
