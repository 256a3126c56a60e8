// Package fileutil provides small file and formatting helpers shared by the
// synthesis, recognition and parent-mode packages.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o600
)

const (
	formatSeconds = "%.1fs"
	formatMinutes = "%dm %.1fs"
	formatHours   = "%dh %dm"
	formatBytes   = "%d B"
	formatScaled  = "%.1f %s"
	sizeStep      = 1024
)

var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// fallbackFilename replaces names that clean down to nothing.
const fallbackFilename = "audio"

// Audio extensions accepted for recognition uploads. Browsers record webm.
const (
	extAAC  = ".aac"
	extFLAC = ".flac"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extWAV  = ".wav"
	extWEBM = ".webm"
)

const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtCreateTemp        = "failed to create temp file in %s: %w"
	errFmtWriteTemp         = "failed to write temp file %s: %w"
	errFmtRename            = "failed to move %s into place: %w"
)

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	dirErr := EnsureDir(dir)
	if dirErr != nil {
		return dirErr
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf(errFmtCreateTemp, dir, err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tmpName, defaultFilePermissions)
	}

	if writeErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf(errFmtWriteTemp, tmpName, writeErr)
	}

	renameErr := os.Rename(tmpName, path)
	if renameErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf(errFmtRename, tmpName, renameErr)
	}

	return nil
}

// FormatDuration renders d for log lines and CLI output: "45.2s",
// "5m 30.5s" or "1h 15m".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf(formatSeconds, d.Seconds())
	case d < time.Hour:
		minutes := d.Truncate(time.Minute)

		return fmt.Sprintf(formatMinutes, int(minutes.Minutes()), (d - minutes).Seconds())
	default:
		hours := d.Truncate(time.Hour)

		return fmt.Sprintf(formatHours, int(hours.Hours()), int((d - hours).Minutes()))
	}
}

// FormatFileSize renders a byte count with a binary unit, for example
// "500 B", "2.0 KB" or "1.5 MB".
func FormatFileSize(size int64) string {
	if size < sizeStep {
		return fmt.Sprintf(formatBytes, size)
	}

	value := float64(size) / sizeStep
	unit := 0

	for value >= sizeStep && unit < len(sizeUnits)-1 {
		value /= sizeStep
		unit++
	}

	return fmt.Sprintf(formatScaled, value, sizeUnits[unit])
}

// IsValidAudioFile reports whether filename has an extension the
// recognition engines accept.
func IsValidAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extFLAC, extOGG, extM4A, extAAC, extWEBM:
		return true
	default:
		return false
	}
}

// SanitizeFilename makes an uploaded file name safe to forward: reserved
// and control characters become underscores and directory parts are
// dropped. A name with nothing left becomes "audio".
func SanitizeFilename(filename string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}

		return r
	}, filename)

	cleaned = strings.Trim(cleaned, " .")
	if strings.Trim(cleaned, "_") == "" {
		return fallbackFilename
	}

	return cleaned
}
