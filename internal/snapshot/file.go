package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"procurement-signals/internal/clock"
)

// FileSource reads a JSON document from disk on every Load.
type FileSource struct {
	path   string
	clock  clock.Clock
	logger zerolog.Logger
}

// NewFileSource 构造文件快照源。
func NewFileSource(path string, clk clock.Clock, logger zerolog.Logger) *FileSource {
	if clk == nil {
		clk = clock.Real{}
	}
	return &FileSource{
		path:   path,
		clock:  clk,
		logger: logger.With().Str("component", "snapshot_file").Logger(),
	}
}

// Load implements Source.
func (f *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	snap := Build(doc, f.clock.Now(), f.logger)
	f.logger.Debug().Str("path", f.path).Int("materials", len(snap.Materials)).Msg("快照已加载")
	return snap, nil
}

var _ Source = (*FileSource)(nil)
