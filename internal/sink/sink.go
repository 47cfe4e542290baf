package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// maxPendingChunks is the number of queued chunks above
	// which a write triggers an immediate flush.
	maxPendingChunks = 3

	// maxKeepTime is the time after the last flush past which
	// a write triggers an immediate flush.
	maxKeepTime = 1000 * time.Millisecond

	// debounceDelay is the idle time after which pending chunks are flushed.
	debounceDelay = 200 * time.Millisecond
)

var ErrSinkClosed = errors.New("sink closed")

// Options configures a sink.
type Options struct {
	// Tee mirrors committed bytes of file destinations to the console.
	// Error class sinks mirror to Stderr, standard class sinks to Stdout.
	Tee bool

	// Stdout is the console stream for standard output. Defaults to os.Stdout.
	Stdout io.Writer

	// Stderr is the console stream for standard error. Defaults to os.Stderr.
	Stderr io.Writer

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Log is the logger to use for flush errors.
	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return o
}

// Sink is a buffered writer for one destination. Writes are queued and
// committed in arrival order by serialized flushes, so the bytes of two
// flushes never interleave.
type Sink struct {
	dest Destination
	opts Options

	// mu guards the pending queue, the flush timestamp and the timer
	mu        sync.Mutex
	pending   [][]byte
	lastFlush time.Time
	timer     *time.Timer
	timerGen  uint64
	closed    bool

	// flushLock serializes flushes
	flushLock sync.Mutex

	// fileLock guards the file handle
	fileLock sync.Mutex
	file     *os.File

	log *zap.Logger
}

var _ io.Writer = (*Sink)(nil)

// New creates a sink for the given destination. The file of a file
// destination is opened lazily on the first flush.
func New(dest Destination, opts Options) *Sink {
	opts = opts.withDefaults()

	return &Sink{
		dest:      dest,
		opts:      opts,
		lastFlush: opts.Now(),
		log:       opts.Log.Named("sink").With(zap.String("destination", dest.Key())),
	}
}

// Destination returns the destination of the sink.
func (s *Sink) Destination() Destination {
	return s.dest
}

// Write queues a copy of p and possibly triggers or schedules a flush.
// It never waits for I/O.
func (s *Sink) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	chunk := bytes.Clone(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSinkClosed
	}

	s.pending = append(s.pending, chunk)

	now := s.opts.Now()

	last := chunk[len(chunk)-1]
	immediate := last == '\n' || last == '\r' ||
		len(s.pending) > maxPendingChunks ||
		now.Sub(s.lastFlush) > maxKeepTime

	if immediate {
		s.cancelTimerLocked()
		s.lastFlush = now
		go s.flushAsync()
		return len(p), nil
	}

	s.cancelTimerLocked()
	gen := s.timerGen
	s.timer = time.AfterFunc(debounceDelay, func() {
		s.onTimer(gen)
	})

	return len(p), nil
}

// Mark writes a timestamped banner.
func (s *Sink) Mark(text string) {
	ts := s.opts.Now().UTC().Format(time.RFC3339Nano)
	_, _ = s.Write([]byte(fmt.Sprintf("# -- %s --\n\n%s\n", ts, text)))
}

// Flush commits all pending chunks with a single write.
func (s *Sink) Flush() error {
	s.flushLock.Lock()
	defer s.flushLock.Unlock()

	s.mu.Lock()
	chunks := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}

	data := bytes.Join(chunks, nil)

	if err := s.commit(data); err != nil {
		return err
	}

	if s.opts.Tee && !s.dest.IsConsole() {
		if _, err := s.consoleWriter().Write(data); err != nil {
			s.log.Warn("tee failed", zap.Error(err))
		}
	}

	return nil
}

// Sync cancels a scheduled flush and flushes synchronously. All bytes
// written before Sync is called are committed when it returns.
func (s *Sink) Sync() error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.lastFlush = s.opts.Now()
	s.mu.Unlock()

	return s.Flush()
}

// Close closes the file handle, if one is open. A later flush reopens
// the destination.
func (s *Sink) Close() error {
	s.fileLock.Lock()
	defer s.fileLock.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	if err != nil {
		return fmt.Errorf("failed to close %s: %w", s.dest.Target, err)
	}

	return nil
}

// Shutdown flushes and closes the sink. Writes fail once Shutdown
// has started, so every accepted write is committed before the file
// is closed.
func (s *Sink) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	syncErr := s.Sync()

	if err := s.Close(); err != nil {
		return err
	}

	return syncErr
}

// EnsureLocation creates the directory of a file destination.
func (s *Sink) EnsureLocation() error {
	if s.dest.IsConsole() {
		return nil
	}

	return EnsureDir(s.dest.Target)
}

func (s *Sink) onTimer(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.timer == nil {
		// canceled or replaced
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.lastFlush = s.opts.Now()
	s.mu.Unlock()

	s.flushAsync()
}

func (s *Sink) flushAsync() {
	if err := s.Flush(); err != nil {
		s.log.Error("flush failed", zap.Error(err))
	}
}

// cancelTimerLocked stops a scheduled flush. Must be called with mu held.
func (s *Sink) cancelTimerLocked() {
	s.timerGen++

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sink) commit(data []byte) error {
	s.fileLock.Lock()
	defer s.fileLock.Unlock()

	w, err := s.writerLocked()
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %d bytes to %s: %w", len(data), s.dest.Target, err)
	}

	return nil
}

// writerLocked returns the writer of the destination, opening the file
// if necessary. Must be called with fileLock held.
func (s *Sink) writerLocked() (io.Writer, error) {
	if s.dest.IsConsole() {
		return s.consoleWriter(), nil
	}

	if s.file != nil {
		return s.file, nil
	}

	file, err := os.OpenFile(s.dest.Target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.dest.Target, err)
	}

	s.file = file

	return file, nil
}

func (s *Sink) consoleWriter() io.Writer {
	if s.dest.Class == Error {
		return s.opts.Stderr
	}

	return s.opts.Stdout
}
