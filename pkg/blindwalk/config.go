package blindwalk

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// loadConfig decodes the TOML file at path over a. Keys that don't name a
// setting are rejected, so a typo doesn't silently fall back to a default.
func loadConfig(path string, a *arguments) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(a); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}
