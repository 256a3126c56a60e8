// Package gate implements parent mode: a daily usage budget, a sensitive
// word filter over chat messages, an audit log and the parent session.
//
// State lives in small JSON files inside one directory. Every write goes
// through a temp file and a rename under the owning component's mutex.
package gate

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/fileutil"
	"github.com/book-expert/voice-assistant/internal/metrics"
)

const backendGate = "parent_mode"

// Rejection reasons, also used as metric labels.
const (
	ReasonTimeLimit     = "time_limit"
	ReasonSensitiveWord = "sensitive_word"
)

const (
	logFmtRejected    = "Chat rejected by parent mode: %s"
	logFmtAuditFailed = "Failed to write audit entry %s: %v"
	msgTimeLimit      = "daily usage time has been used up"
	msgSensitiveWord  = "message contains blocked content"
)

var (
	// ErrTimeLimitReached wraps rejections caused by an exhausted budget.
	ErrTimeLimitReached = errors.New("daily time limit reached")
	// ErrSensitiveContent wraps rejections caused by a listed word.
	ErrSensitiveContent = errors.New("sensitive content")
)

// Gate combines the parent-mode components.
type Gate struct {
	Words  *WordFilter
	Limits *TimeLimiter
	Audit  *AuditLog
	log    *logger.Logger
	now    func() time.Time
}

// New opens or creates the gate state inside dir.
func New(dir string, log *logger.Logger) (*Gate, error) {
	dirErr := fileutil.EnsureDir(dir)
	if dirErr != nil {
		return nil, dirErr
	}

	words, err := NewWordFilter(filepath.Join(dir, SensitiveWordsFile), log)
	if err != nil {
		return nil, err
	}

	limits, err := NewTimeLimiter(filepath.Join(dir, TimeLimitFile), filepath.Join(dir, UsageFile))
	if err != nil {
		return nil, err
	}

	audit, err := NewAuditLog(filepath.Join(dir, AuditLogFile), DefaultAuditCapacity)
	if err != nil {
		return nil, err
	}

	return &Gate{
		Words:  words,
		Limits: limits,
		Audit:  audit,
		log:    log,
		now:    time.Now,
	}, nil
}

// CheckChat rejects chat payloads when the budget is exhausted or any
// message contains a listed word. Rejections are access_denied errors.
func (g *Gate) CheckChat(messages []string) error {
	now := g.now()

	if g.Limits.Exhausted(now) {
		g.reject(now, ReasonTimeLimit, EventTimeLimitReached, "")

		return core.NewError(core.KindAccessDenied, backendGate, msgTimeLimit, ErrTimeLimitReached)
	}

	for _, message := range messages {
		word, found := g.Words.Scan(message)
		if found {
			g.reject(now, ReasonSensitiveWord, EventChatBlocked, word)

			return core.NewError(core.KindAccessDenied, backendGate, msgSensitiveWord, ErrSensitiveContent)
		}
	}

	return nil
}

// Heartbeat records elapsed client time and returns the resulting budget.
func (g *Gate) Heartbeat(elapsed time.Duration) (Usage, error) {
	return g.Limits.RecordUsage(g.now(), elapsed)
}

// Usage returns today's budget.
func (g *Gate) Usage() Usage {
	return g.Limits.Status(g.now())
}

// Record writes an audit entry, logging instead of failing on I/O errors.
func (g *Gate) Record(event, detail string) {
	err := g.Audit.Record(g.now(), event, detail)
	if err != nil {
		g.log.Warn(logFmtAuditFailed, event, err)
	}
}

func (g *Gate) reject(now time.Time, reason, event, detail string) {
	g.log.Info(logFmtRejected, reason)
	metrics.GateRejectionsTotal.WithLabelValues(reason).Inc()

	err := g.Audit.Record(now, event, detail)
	if err != nil {
		g.log.Warn(logFmtAuditFailed, event, err)
	}
}
