package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAuditCapacity bounds the audit log; older entries are dropped.
const DefaultAuditCapacity = 500

// Audit events.
const (
	EventChatBlocked      = "chat_blocked"
	EventTimeLimitReached = "time_limit_reached"
	EventParentLogin      = "parent_login"
	EventParentLoginFail  = "parent_login_failed"
	EventTimeLimitChanged = "time_limit_changed"
	EventWordsChanged     = "sensitive_words_changed"
)

// AuditEntry is one audit record.
type AuditEntry struct {
	Time   time.Time `json:"time"`
	ID     string    `json:"id"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
}

// AuditLog is a bounded, persisted list of gate events.
type AuditLog struct {
	path     string
	entries  []AuditEntry
	capacity int
	mu       sync.Mutex
}

// NewAuditLog loads the log at path.
func NewAuditLog(path string, capacity int) (*AuditLog, error) {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}

	var entries []AuditEntry

	err := loadJSON(path, &entries)
	if err != nil {
		return nil, err
	}

	log := &AuditLog{path: path, capacity: capacity}
	log.entries = trimEntries(entries, capacity)

	return log, nil
}

// Record appends an entry and persists the log.
func (a *AuditLog) Record(now time.Time, event, detail string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, AuditEntry{
		Time:   now.UTC(),
		ID:     uuid.NewString(),
		Event:  event,
		Detail: detail,
	})
	a.entries = trimEntries(a.entries, a.capacity)

	return saveJSON(a.path, a.entries)
}

// Entries returns up to limit entries, newest first. A limit of zero returns all.
func (a *AuditLog) Entries(limit int) []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := len(a.entries)
	if limit > 0 && limit < count {
		count = limit
	}

	newest := make([]AuditEntry, 0, count)
	for i := len(a.entries) - 1; i >= 0 && len(newest) < count; i-- {
		newest = append(newest, a.entries[i])
	}

	return newest
}

func trimEntries(entries []AuditEntry, capacity int) []AuditEntry {
	if len(entries) <= capacity {
		return entries
	}

	return append([]AuditEntry(nil), entries[len(entries)-capacity:]...)
}
