package library

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Ext is the file extension of library scripts.
const Ext = ".star"

var ErrInvalidName = errors.New("invalid script name")

type Registry struct {
	paths   []string
	mu      sync.RWMutex
	scripts map[string]*Script
}

func NewRegistry(paths []string) *Registry {
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		clean = append(clean, filepath.Clean(p))
	}
	return &Registry{paths: clean, scripts: make(map[string]*Script)}
}

// Paths returns the directories the registry reads from.
func (r *Registry) Paths() []string {
	return append([]string(nil), r.paths...)
}

// Load rescans every path. Earlier paths win when two paths hold a script
// with the same name.
func (r *Registry) Load() error {
	scripts := make(map[string]*Script)
	for i := len(r.paths) - 1; i >= 0; i-- {
		if err := loadPath(r.paths[i], scripts); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.scripts = scripts
	r.mu.Unlock()
	return nil
}

func loadPath(base string, into map[string]*Script) error {
	info, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("scripts path is not a directory: %s", base)
	}
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != Ext {
			return nil
		}
		script, err := loadScript(base, path)
		if err != nil {
			return err
		}
		into[script.Name] = script
		return nil
	})
}

func loadScript(base, path string) (*Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(content)
	return &Script{
		Name:        filepath.ToSlash(rel),
		Description: firstDescription(string(content)),
		Path:        path,
		Version:     hex.EncodeToString(sum[:8]),
		ModTime:     info.ModTime(),
		Content:     string(content),
	}, nil
}

// List returns scripts sorted by name.
func (r *Registry) List() []*Script {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scripts := make([]*Script, 0, len(r.scripts))
	for _, script := range r.scripts {
		scripts = append(scripts, script)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })
	return scripts
}

func (r *Registry) Get(name string) (*Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	script, ok := r.scripts[name]
	return script, ok
}

// Source returns a script's content and version for load().
func (r *Registry) Source(name string) ([]byte, string, bool) {
	script, ok := r.Get(name)
	if !ok {
		return nil, "", false
	}
	return []byte(script.Content), script.Version, true
}

// Create writes a new script into the last configured path.
func (r *Registry) Create(name, content string) (*Script, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if len(r.paths) == 0 {
		return nil, errors.New("no scripts path configured")
	}

	base := r.paths[len(r.paths)-1]
	path := filepath.Join(base, filepath.FromSlash(name))
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("script already exists: %s", name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if content == "" {
		content = defaultScript(name)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}

	script, err := loadScript(base, path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.scripts[script.Name] = script
	r.mu.Unlock()
	return script, nil
}

// ReloadScript refreshes a single file after it changed on disk and returns
// the affected script name. A file that no longer exists is dropped.
func (r *Registry) ReloadScript(path string) (string, error) {
	base := r.baseFor(path)
	if base == "" {
		return "", fmt.Errorf("path outside scripts directories: %s", path)
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", err
	}
	name := filepath.ToSlash(rel)

	script, err := loadScript(base, path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			delete(r.scripts, name)
			r.mu.Unlock()
			return name, nil
		}
		return name, err
	}
	r.mu.Lock()
	r.scripts[script.Name] = script
	r.mu.Unlock()
	return script.Name, nil
}

func (r *Registry) baseFor(path string) string {
	path = filepath.Clean(path)
	for _, base := range r.paths {
		if path == base || strings.HasPrefix(path, base+string(filepath.Separator)) {
			return base
		}
	}
	return ""
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(filepath.ToSlash(name))
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	return name, nil
}

// firstDescription returns the first comment line of a script.
func firstDescription(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			return ""
		}
		if desc := strings.TrimSpace(strings.TrimLeft(line, "#")); desc != "" {
			return desc
		}
	}
	return ""
}

func defaultScript(name string) string {
	return fmt.Sprintf("# %s\n\nfor name, df in dfs.items():\n    print(name, df.shape)\n", strings.TrimSuffix(name, Ext))
}
