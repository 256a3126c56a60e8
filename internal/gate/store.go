package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/voice-assistant/internal/fileutil"
)

// State file names inside the gate directory.
const (
	SensitiveWordsFile = "sensitive_words.json"
	TimeLimitFile      = "time_limit.json"
	UsageFile          = "usage.json"
	AuditLogFile       = "audit_log.json"
)

const (
	errFmtReadState   = "failed to read %s: %w"
	errFmtDecodeState = "failed to decode %s: %w"
	errFmtEncodeState = "failed to encode %s: %w"
)

// loadJSON decodes path into v. A missing file leaves v untouched.
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf(errFmtReadState, path, err)
	}

	if len(data) == 0 {
		return nil
	}

	decodeErr := json.Unmarshal(data, v)
	if decodeErr != nil {
		return fmt.Errorf(errFmtDecodeState, path, decodeErr)
	}

	return nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf(errFmtEncodeState, path, err)
	}

	return fileutil.WriteFileAtomic(path, data)
}
