// internal/control/file.go
package control

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// FileSource follows an append-only command file, so another process (or
// `echo pause >> file`) can steer a running automation. Only lines appended
// after startup are read.
type FileSource struct {
	path   string
	poll   bool
	logger *zap.Logger
}

// NewFileSource expands ~ in path and creates the file when it is missing.
func NewFileSource(logger *zap.Logger, path string, poll bool) (*FileSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand control file path: %w", err)
	}
	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create control file directory: %w", err)
		}
	}
	f, err := os.OpenFile(expanded, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open control file: %w", err)
	}
	f.Close()
	return &FileSource{path: expanded, poll: poll, logger: logger.Named("control_file")}, nil
}

func (s *FileSource) Name() string { return "file:" + s.path }

// Path returns the expanded file path.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Run(ctx context.Context, d *Dispatcher) error {
	s.logger.Info("Watching control file.", zap.String("path", s.path))
	t, err := tail.TailFile(s.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      s.poll,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail control file: %w", err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping control file watcher.")
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				s.logger.Warn("Error reading control file.", zap.Error(line.Err))
				continue
			}
			text := strings.TrimSpace(line.Text)
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			_ = d.Dispatch(ctx, s.Name(), []byte(text))
		}
	}
}
