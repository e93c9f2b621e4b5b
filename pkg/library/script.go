package library

import "time"

// Script is a reusable transform stored on disk. Scripts can be run
// directly or pulled into other scripts with load().
type Script struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Path        string    `json:"path"`
	Version     string    `json:"version"`
	ModTime     time.Time `json:"modTime"`
	Content     string    `json:"-"`
}
