// Package audit records security-relevant events on the state branch,
// giving the human reviewers a trail alongside the proposals themselves.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"member-portal/internal/gitstore"
)

const logPath = "audit.log"

// Event is one audit record, serialized as a JSONL line. Actor is the
// identity key or token subject hash, never a raw email.
type Event struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, actor, action, resource, metadata string)
}

// Logger appends events to audit.log on the state branch. A nil contents
// backend degrades to local logging only (memory-store deployments).
type Logger struct {
	contents gitstore.Contents
	branch   string
	nowF     func() time.Time
}

// NewLogger returns an AuditLogger appending to the given state branch.
// contents may be nil.
func NewLogger(contents gitstore.Contents, branch string) *Logger {
	return &Logger{contents: contents, branch: branch, nowF: time.Now}
}

// LogEvent appends one audit line. Best-effort: a lost append race is
// retried once against the refreshed file, then given up with a local log.
func (l *Logger) LogEvent(ctx context.Context, actor, action, resource, metadata string) {
	ev := Event{
		ID:        uuid.New().String(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: l.nowF().UTC(),
	}
	if l.contents == nil {
		log.Printf("audit: %s %s %s", ev.Action, ev.Resource, ev.Actor)
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		log.Printf("audit: marshal event %s/%s: %v", action, resource, err)
		return
	}
	for i := 0; i < 2; i++ {
		data, sha, err := l.contents.GetFile(ctx, l.branch, logPath)
		if err != nil && !errors.Is(err, gitstore.ErrNotFound) {
			log.Printf("audit: read log: %v", err)
			return
		}
		updated := append(data, append(line, '\n')...)
		_, err = l.contents.PutFile(ctx, l.branch, logPath, updated, "audit: "+action, sha)
		if err == nil {
			return
		}
		if !errors.Is(err, gitstore.ErrConflict) {
			log.Printf("audit: append event %s/%s: %v", action, resource, err)
			return
		}
	}
	log.Printf("audit: append event %s/%s: conflict persisted", action, resource)
}
