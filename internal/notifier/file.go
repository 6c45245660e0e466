package notifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ictengine/ictalert/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultAlertFile   = "logs/alerts/alerts.jsonl"
	DefaultRotateBytes = 500_000
	rotateStampLayout  = "20060102_150405"
)

// FileChannel appends one JSON line per alert and rotates the file once
// it grows past rotateBytes
type FileChannel struct {
	path        string
	rotateBytes int64
	logger      zerolog.Logger
	now         func() time.Time
	mu          sync.Mutex
}

// NewFileChannel creates a file channel writing to path
func NewFileChannel(path string, rotateBytes int64, logger zerolog.Logger) *FileChannel {
	if path == "" {
		path = DefaultAlertFile
	}
	if rotateBytes <= 0 {
		rotateBytes = DefaultRotateBytes
	}
	return &FileChannel{
		path:        path,
		rotateBytes: rotateBytes,
		logger:      logger.With().Str("component", "file-channel").Logger(),
		now:         time.Now,
	}
}

func (c *FileChannel) Name() string { return "file" }

func (c *FileChannel) Role() types.Role { return types.RoleFile }

// Path returns the active log file
func (c *FileChannel) Path() string { return c.path }

func (c *FileChannel) Send(alert types.Alert) error {
	line, err := json.Marshal(alert.ToRecord())
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create alert directory: %w", err)
	}
	c.rotateIfNeeded()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write alert file: %w", err)
	}
	return nil
}

// rotateIfNeeded renames the current file once it exceeds the limit.
// Failures are logged and writing continues on the current file.
func (c *FileChannel) rotateIfNeeded() {
	info, err := os.Stat(c.path)
	if err != nil || info.Size() <= c.rotateBytes {
		return
	}

	target := c.rotatedName()
	if err := os.Rename(c.path, target); err != nil {
		c.logger.Warn().Err(err).Str("path", c.path).Msg("Alert file rotation failed")
		return
	}
	c.logger.Info().
		Str("path", c.path).
		Str("rotated_to", target).
		Int64("bytes", info.Size()).
		Msg("Alert file rotated")
}

func (c *FileChannel) rotatedName() string {
	dir := filepath.Dir(c.path)
	ext := filepath.Ext(c.path)
	stem := strings.TrimSuffix(filepath.Base(c.path), ext)
	stamp := c.now().Format(rotateStampLayout)

	name := filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, stamp, ext))
	for i := 1; fileExists(name); i++ {
		name = filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", stem, stamp, i, ext))
	}
	return name
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
