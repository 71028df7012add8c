package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"medcmd/pkg"
	"medcmd/src/logger"

	"github.com/bytedance/sonic"
)

// CommandLog keeps completed commands for later review.
type CommandLog interface {
	Record(cmd pkg.CompletedCommand) error
	Load(sessionID string) ([]pkg.CompletedCommand, error)
	Stats(sessionID string) (*CommandStats, error)
	CleanupOldEntries(sessionID string, maxAge time.Duration) error
}

// JSONCommandLog stores one JSON array file per session.
type JSONCommandLog struct {
	baseDir string
	mu      sync.Mutex
}

// CommandStats summarizes a session's completed commands.
type CommandStats struct {
	SessionID     string         `json:"session_id"`
	TotalCommands int            `json:"total_commands"`
	ByIntent      map[string]int `json:"by_intent"`
	OldestEntry   time.Time      `json:"oldest_entry"`
	NewestEntry   time.Time      `json:"newest_entry"`
	FileSizeBytes int64          `json:"file_size_bytes"`
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NewJSONCommandLog creates a command log under baseDir.
func NewJSONCommandLog(baseDir string) *JSONCommandLog {
	return &JSONCommandLog{baseDir: baseDir}
}

func (j *JSONCommandLog) path(sessionID string) string {
	return filepath.Join(j.baseDir, unsafeFileChars.ReplaceAllString(sessionID, "_")+".json")
}

// Load returns an empty slice for sessions without a file.
func (j *JSONCommandLog) Load(sessionID string) ([]pkg.CompletedCommand, error) {
	data, err := os.ReadFile(j.path(sessionID))
	if os.IsNotExist(err) {
		return []pkg.CompletedCommand{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read command log: %w", err)
	}

	var cmds []pkg.CompletedCommand
	if err := sonic.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("failed to parse command log: %w", err)
	}
	return cmds, nil
}

// Record appends cmd to its session file.
func (j *JSONCommandLog) Record(cmd pkg.CompletedCommand) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create command log directory: %w", err)
	}

	cmds, err := j.Load(cmd.SessionID)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", cmd.SessionID).Msg("Failed to load existing command log, starting fresh")
		cmds = []pkg.CompletedCommand{}
	}
	cmds = append(cmds, cmd)

	if err := j.write(cmd.SessionID, cmds); err != nil {
		return err
	}

	logger.Info().
		Str("session_id", cmd.SessionID).
		Str("intent", cmd.Intent).
		Int("total", len(cmds)).
		Msg("Recorded completed command")
	return nil
}

// Stats summarizes the stored commands of a session.
func (j *JSONCommandLog) Stats(sessionID string) (*CommandStats, error) {
	cmds, err := j.Load(sessionID)
	if err != nil {
		return nil, err
	}

	stats := &CommandStats{SessionID: sessionID, ByIntent: map[string]int{}}
	if len(cmds) == 0 {
		return stats, nil
	}

	stats.TotalCommands = len(cmds)
	stats.OldestEntry = cmds[0].CompletedAt
	stats.NewestEntry = cmds[0].CompletedAt
	for _, c := range cmds {
		stats.ByIntent[c.Intent]++
		if c.CompletedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = c.CompletedAt
		}
		if c.CompletedAt.After(stats.NewestEntry) {
			stats.NewestEntry = c.CompletedAt
		}
	}

	if info, err := os.Stat(j.path(sessionID)); err == nil {
		stats.FileSizeBytes = info.Size()
	}
	return stats, nil
}

// CleanupOldEntries drops commands completed more than maxAge ago.
func (j *JSONCommandLog) CleanupOldEntries(sessionID string, maxAge time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cmds, err := j.Load(sessionID)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	kept := make([]pkg.CompletedCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.CompletedAt.After(cutoff) {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(cmds) {
		return nil
	}

	if err := j.write(sessionID, kept); err != nil {
		return err
	}
	logger.Info().Str("session_id", sessionID).Int("removed", len(cmds)-len(kept)).Msg("Cleaned up command log")
	return nil
}

func (j *JSONCommandLog) write(sessionID string, cmds []pkg.CompletedCommand) error {
	data, err := sonic.ConfigStd.MarshalIndent(cmds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal command log: %w", err)
	}
	if err := os.WriteFile(j.path(sessionID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write command log: %w", err)
	}
	return nil
}

// NewCompletedCommand flattens the filled slots of a finished command.
func NewCompletedCommand(sessionID, intent string, slots map[string]pkg.ExtractedEntity, utterances []string, at time.Time) pkg.CompletedCommand {
	flat := make(map[string]string, len(slots))
	for name, e := range slots {
		flat[name] = e.Text
	}
	return pkg.CompletedCommand{
		SessionID:   sessionID,
		Intent:      intent,
		Slots:       flat,
		Utterances:  utterances,
		CompletedAt: at,
	}
}
