package gateway

import "time"

// Session tracks one in-flight transform request.
type Session struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	StartedAt  time.Time `json:"startedAt"`
}
