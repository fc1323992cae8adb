// Package stdio implements the bridge transport over standard input/output
// with newline-delimited JSON framing. One bridge process serves one agent
// client attached to its pipes.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/types"
)

// Transport reads newline-delimited messages from a reader and writes
// responses to a writer.
type Transport struct {
	writer     io.Writer
	writeMutex sync.Mutex
	logger     types.Logger

	lines chan readResult
	quit  chan struct{}

	closed     bool
	closeMutex sync.Mutex

	rawReader io.Reader
	rawWriter io.Writer
}

type readResult struct {
	data []byte
	err  error
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger provides an option to set a custom logger.
func WithLogger(logger types.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Transport over os.Stdin and os.Stdout.
func New(opts ...Option) *Transport {
	return NewWithReadWriter(os.Stdin, os.Stdout, opts...)
}

// NewWithReadWriter creates a Transport over the given streams.
func NewWithReadWriter(reader io.Reader, writer io.Writer, opts ...Option) *Transport {
	t := &Transport{
		writer:    writer,
		logger:    logx.Nop(),
		lines:     make(chan readResult),
		quit:      make(chan struct{}),
		rawReader: reader,
		rawWriter: writer,
	}
	for _, opt := range opts {
		opt(t)
	}

	// A single pump goroutine owns the reader; receivers multiplex on the
	// channel so context cancellation never loses a buffered line.
	go t.pump(reader)
	return t
}

func (t *Transport) pump(reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		select {
		case t.lines <- readResult{data: data}:
		case <-t.quit:
			return
		}
	}
	final := readResult{err: io.EOF}
	if err := scanner.Err(); err != nil {
		final = readResult{err: fmt.Errorf("reading message line: %w", err)}
	}
	select {
	case t.lines <- final:
	case <-t.quit:
	}
}

// Send writes one message followed by a newline. Safe for concurrent use.
func (t *Transport) Send(data []byte) error {
	t.closeMutex.Lock()
	if t.closed {
		t.closeMutex.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.closeMutex.Unlock()

	if len(data) == 0 {
		return fmt.Errorf("cannot send empty message")
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	data = bytes.TrimRight(data, "\n")
	data = append(data, '\n')
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if flusher, ok := t.writer.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			t.logger.Warn("failed to flush writer", "error", err)
		}
	}
	return nil
}

// Receive blocks until the next message arrives or the stream ends.
func (t *Transport) Receive() ([]byte, error) {
	return t.ReceiveWithContext(context.Background())
}

// ReceiveWithContext is Receive with cancellation support.
func (t *Transport) ReceiveWithContext(ctx context.Context) ([]byte, error) {
	t.closeMutex.Lock()
	if t.closed {
		t.closeMutex.Unlock()
		return nil, fmt.Errorf("transport is closed")
	}
	t.closeMutex.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-t.lines:
		return res.data, res.err
	}
}

// Close closes the underlying streams where possible.
func (t *Transport) Close() error {
	t.closeMutex.Lock()
	defer t.closeMutex.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.quit)

	var firstErr error
	if closer, ok := t.rawWriter.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if closer, ok := t.rawReader.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ types.Transport = (*Transport)(nil)
