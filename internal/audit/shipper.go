// Package audit ships audit records for membership and credential changes to
// destinations outside the application log (a JSON-lines file, a webhook).
// Shipping is best-effort: a failing sink is logged and never fails the
// request that produced the record.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MURUGANQA/auth-service/internal/config"
)

// Entry is one audit record.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	Route        string    `json:"route"`
	Status       int       `json:"status"`
	IPAddress    string    `json:"ip_address,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	UserID       int64     `json:"user_id,omitempty"`
	OrgID        int64     `json:"org_id,omitempty"`
	TargetUserID string    `json:"target_user_id,omitempty"`
}

// Shipper delivers entries to one destination.
type Shipper interface {
	Ship(ctx context.Context, entry *Entry) error
	Close() error
}

// MultiShipper fans an entry out to every configured destination.
type MultiShipper struct {
	shippers []Shipper
}

// NewShipper builds the sinks named in cfg. It returns nil when none are
// configured.
func NewShipper(cfg config.AuditConfig) (*MultiShipper, error) {
	var shippers []Shipper
	if cfg.FilePath != "" {
		fs, err := NewFileShipper(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, err
		}
		shippers = append(shippers, fs)
	}
	if cfg.WebhookURL != "" {
		shippers = append(shippers, NewWebhookShipper(cfg.WebhookURL, cfg.WebhookTimeout))
	}
	if len(shippers) == 0 {
		return nil, nil
	}
	return &MultiShipper{shippers: shippers}, nil
}

// Ship sends entry to every sink and joins their errors.
func (ms *MultiShipper) Ship(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (ms *MultiShipper) Close() error {
	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebhookShipper POSTs each entry as JSON.
type WebhookShipper struct {
	url    string
	client *http.Client
}

// NewWebhookShipper creates a webhook sink. A zero timeout means 5s.
func NewWebhookShipper(url string, timeout time.Duration) *WebhookShipper {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookShipper{url: url, client: &http.Client{Timeout: timeout}}
}

// Ship posts entry to the webhook. Any 4xx or 5xx is an error.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send audit webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op.
func (ws *WebhookShipper) Close() error { return nil }

// FileShipper appends entries as JSON lines and rotates the file once it
// passes maxSizeMB, keeping maxBackups numbered copies.
type FileShipper struct {
	path       string
	maxSize    int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
}

// NewFileShipper opens (or creates) path for appending.
func NewFileShipper(path string, maxSizeMB, maxBackups int) (*FileShipper, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		file:       f,
	}, nil
}

// Ship writes entry as one line.
func (fs *FileShipper) Ship(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxSize > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size() >= fs.maxSize {
			if err := fs.rotate(); err != nil {
				slog.Warn("failed to rotate audit log", "path", fs.path, "error", err)
			}
		}
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, moves path to path.1 and reopens path.
// Callers hold fs.mu.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	if fs.maxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.path, fs.maxBackups))
		for i := fs.maxBackups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", fs.path, i), fmt.Sprintf("%s.%d", fs.path, i+1))
		}
		_ = os.Rename(fs.path, fs.path+".1")
	} else {
		_ = os.Remove(fs.path)
	}

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = f
	return nil
}

// Close closes the underlying file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
