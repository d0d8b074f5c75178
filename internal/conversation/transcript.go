package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/harunnryd/shiori/internal/errors"
	"github.com/harunnryd/shiori/internal/model/contract"
	"github.com/harunnryd/shiori/internal/pathutil"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const (
	transcriptLockName    = ".transcripts.lock"
	transcriptLockTimeout = 5 * time.Second
	transcriptLockRetry   = 50 * time.Millisecond
)

// Transcript is the on-disk form of a conversation.
type Transcript struct {
	SessionID string             `json:"session_id"`
	Model     string             `json:"model,omitempty"`
	SavedAt   time.Time          `json:"saved_at"`
	Messages  []contract.Message `json:"messages"`
}

// SaveTranscript writes the current history as indented JSON, replacing the
// file atomically.
func (e *Engine) SaveTranscript(path string) (string, error) {
	target, err := pathutil.EnsureParent(path)
	if err != nil {
		return "", fmt.Errorf("transcript path: %w", err)
	}

	e.mu.Lock()
	t := Transcript{
		SessionID: e.id,
		Model:     e.opts.Model,
		SavedAt:   time.Now().UTC(),
		Messages:  e.history.Messages(),
	}
	e.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}

	// Chat processes sharing a transcript dir take turns writing.
	lock := flock.New(filepath.Join(filepath.Dir(target), transcriptLockName))
	ctx, cancel := context.WithTimeout(context.Background(), transcriptLockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, transcriptLockRetry)
	if err != nil {
		return "", fmt.Errorf("lock transcript dir: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("lock transcript dir: timed out after %s", transcriptLockTimeout)
	}
	defer func() { _ = lock.Unlock() }()

	if err := atomic.WriteFile(target, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return target, nil
}

// DefaultTranscriptPath names a transcript file for this conversation under dir.
func (e *Engine) DefaultTranscriptPath(dir string) string {
	return filepath.Join(dir, e.ID()+".json")
}

func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	return &t, nil
}

// Load replaces the conversation with a saved transcript and adopts its id, so
// a later default /save writes back to the same file. It returns the number of
// messages restored.
func (e *Engine) Load(path string) (int, error) {
	target, err := pathutil.Expand(path)
	if err != nil {
		return 0, fmt.Errorf("transcript path: %w", err)
	}
	t, err := LoadTranscript(target)
	if err != nil {
		return 0, err
	}
	if len(t.Messages) == 0 {
		return 0, apperrors.InvalidInput(fmt.Sprintf("transcript %s has no messages", target))
	}

	restored := &History{messages: append([]contract.Message(nil), t.Messages...)}
	if missing := restored.UnpairedToolCalls(); len(missing) > 0 {
		return 0, apperrors.InvalidInput(fmt.Sprintf("transcript %s has unanswered tool calls: %s", target, strings.Join(missing, ", ")))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() == StateTerminated {
		return 0, fmt.Errorf("load: %w", apperrors.ErrSessionClosed)
	}
	restored.system = e.history.system
	e.history = restored
	if t.SessionID != "" {
		e.id = t.SessionID
	}
	e.callSeq = 0
	slog.Info("Conversation loaded", "session_id", e.id, "path", target, "messages", len(t.Messages))
	return len(t.Messages), nil
}
