package env

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func LoadFromDir(dir string) error {
	return Load(filepath.Join(dir, ".env"))
}

// Load reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func Load(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}
