// Package logging provides the session journal: a newline-delimited JSON
// file under LOG_DIR that records every comment, speak, decision, and
// phase transition as it happens, independent of and complementary to the
// Event Log's in-memory bounded windows and the process's structured
// console logger.
//
// Grounded on the teacher's JSONL-append file store (open with
// O_APPEND|O_CREATE|O_WRONLY, marshal, write a newline, under a mutex) and
// on original_source's per-event journaling categories (BRAIN, STATE,
// SPEAK, COMMENT, VIEWER, SYSTEM), folded here into a single typed Entry.
package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category is the closed set of journal entry kinds.
type Category string

const (
	CategoryComment    Category = "COMMENT"
	CategorySpeak      Category = "SPEAK"
	CategoryDecision   Category = "BRAIN"
	CategoryTransition Category = "STATE"
	CategoryViewer     Category = "VIEWER"
	CategorySystem     Category = "SYSTEM"
)

// Entry is one line of the session journal file.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Category  Category       `json:"category"`
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Journal appends [Entry] values to a per-session JSONL file named
// "<service>_<session_id>.jsonl" under dir, and mirrors a human-readable
// line to a [slog.Logger] for console/aggregator consumption.
type Journal struct {
	service   string
	dir       string
	logger    *slog.Logger
	mu        sync.Mutex
	sessionID string
	file      *os.File
}

// New creates a Journal writing under dir, naming its file from service and
// sessionID. It creates dir if necessary and opens the file for appending.
func New(dir, service, sessionID string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}

	j := &Journal{service: service, dir: dir, logger: logger, sessionID: sessionID}
	if err := j.openLocked(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) openLocked() error {
	path := filepath.Join(j.dir, fmt.Sprintf("%s_%s.jsonl", j.service, j.sessionID))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open journal file: %w", err)
	}
	j.file = f
	return nil
}

// Rotate closes the current journal file and opens a new one under a fresh
// session ID, such as the one returned by [internal/metrics.Collector.Reset].
// Nothing in this module calls it; the journal keeps one file per process
// unless a caller rotates it.
func (j *Journal) Rotate(sessionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			j.logger.Warn("logging: close previous journal file failed", "error", err)
		}
	}
	j.sessionID = sessionID
	return j.openLocked()
}

func (j *Journal) write(category Category, message string, data map[string]any) {
	entry := Entry{
		Timestamp: time.Now(),
		Category:  category,
		SessionID: j.sessionID,
		Message:   message,
		Data:      data,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	raw, err := json.Marshal(entry)
	if err != nil {
		j.logger.Error("logging: marshal journal entry failed", "error", err)
		return
	}
	if _, err := j.file.Write(append(raw, '\n')); err != nil {
		// Filesystem errors on the journal are logged and swallowed: the
		// in-memory Event Log still retains the data until the next
		// successful export, so the pipeline must not stall on this.
		j.logger.Warn("logging: write journal entry failed", "error", err)
	}
}

// Comment journals an incoming classified comment.
func (j *Journal) Comment(author, text, intent string) {
	j.write(CategoryComment, fmt.Sprintf("[%s] %q", author, truncate(text, 80)), map[string]any{
		"author": author,
		"intent": intent,
	})
	j.logger.Debug("comment received", "author", author, "intent", intent)
}

// Speak journals a committed SPEAK decision.
func (j *Journal) Speak(text string, intent, phase string, priority int, viewers int) {
	j.write(CategorySpeak, truncate(text, 120), map[string]any{
		"intent":   intent,
		"phase":    phase,
		"priority": priority,
		"viewers":  viewers,
	})
	j.logger.Info("speak", "intent", intent, "phase", phase, "priority", priority, "viewers", viewers)
}

// Decision journals a Brain decision, regardless of action.
func (j *Journal) Decision(action, reason string, priority int) {
	j.write(CategoryDecision, fmt.Sprintf("decision: %s", action), map[string]any{
		"action":   action,
		"reason":   reason,
		"priority": priority,
	})
	j.logger.Debug("brain decision", "action", action, "reason", reason, "priority", priority)
}

// Transition journals a sale-phase transition.
func (j *Journal) Transition(from, to, trigger string) {
	j.write(CategoryTransition, fmt.Sprintf("%s -> %s", from, to), map[string]any{
		"from":    from,
		"to":      to,
		"trigger": trigger,
	})
	j.logger.Info("phase transition", "from", from, "to", to, "trigger", trigger)
}

// Viewer journals a significant viewer-count change.
func (j *Journal) Viewer(prev, curr int, deltaPct float64) {
	j.write(CategoryViewer, fmt.Sprintf("viewers %d -> %d", prev, curr), map[string]any{
		"previous":  prev,
		"current":   curr,
		"delta_pct": deltaPct,
	})
	j.logger.Info("significant viewer change", "previous", prev, "current", curr, "delta_pct", deltaPct)
}

// System journals a lifecycle event (session start/end, export, shutdown).
func (j *Journal) System(message string, data map[string]any) {
	j.write(CategorySystem, message, data)
	j.logger.Info(message)
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
