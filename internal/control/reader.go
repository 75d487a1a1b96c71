// internal/control/reader.go
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ReaderSource reads one command per line, typically from a terminal.
type ReaderSource struct {
	name string
	r    io.Reader
}

func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, r: r}
}

func (s *ReaderSource) Name() string { return s.name }

// Run returns at EOF or when ctx ends. A read blocked on the terminal is
// abandoned, not interrupted.
func (s *ReaderSource) Run(ctx context.Context, d *Dispatcher) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("%s: read failed: %w", s.name, err)
					}
				default:
				}
				return nil
			}
			if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			_ = d.Dispatch(ctx, s.name, []byte(line))
		}
	}
}
