package uuid

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	guuid "github.com/google/uuid"
)

// LoadOrCreate returns the instance id stored at path, creating one if the
// file is missing or empty. The id survives restarts so MQTT topics stay put.
func LoadOrCreate(path string) (string, error) {
	if b, err := os.ReadFile(path); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			if _, err := guuid.Parse(s); err == nil {
				return s, nil
			}
		}
	}

	id := guuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return id, err
	}
	if err := renameio.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return id, err
	}
	return id, nil
}
