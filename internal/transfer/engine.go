package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultChunkSize is the number of bytes read and written per loop iteration
const DefaultChunkSize = 8192

const maxReconnectDelay = 30 * time.Second

var errStopped = errors.New("transfer: stopped")

// Options configures an Engine
type Options struct {
	// ChunkSize is the read buffer size.
	// Default: 8192
	ChunkSize int

	// MaxReconnects bounds consecutive reconnects without a successful read.
	// Zero uses the default, negative reconnects forever.
	// Default: 5
	MaxReconnects int

	// ReconnectDelay is the first backoff after a failed reconnect. It doubles per failure.
	// Default: 1s
	ReconnectDelay time.Duration

	// Context bounds every request the engine issues.
	// Default: context.Background()
	Context context.Context

	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults
func DefaultOptions() Options {
	return Options{
		ChunkSize:      DefaultChunkSize,
		MaxReconnects:  5,
		ReconnectDelay: time.Second,
		Context:        context.Background(),
		Logger:         zap.NewNop(),
	}
}

// Engine owns the lifecycle of one download: the state machine, the read/write
// loop, reconnect-on-fault and cleanup of the destination file.
//
// Control methods are safe to call from any goroutine. The loop body, the
// destination file and the byte counters belong to the loop goroutine.
type notification[K comparable] struct {
	event string
	fn    func(Observer[K])
}

type Engine[K comparable] struct {
	transport Transport
	opts      Options
	logger    *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	url       string
	dest      string
	tag       K
	observer  Observer[K]
	active    bool // a loop owns the current attempt
	connected bool // the current attempt reached StateRunning
	resumed   bool
	err       error
	done      chan struct{}
	stopCh    chan struct{}

	// Notifications queued under mu in transition order, delivered by one goroutine at a time
	qmu      sync.Mutex
	qcond    *sync.Cond
	pending  []notification[K]
	draining bool

	transferred atomic.Int64
	contentSize atomic.Int64
}

// New creates an engine in StatePaused for the given source and destination
func New[K comparable](tag K, url, dest string, transport Transport, opts Options) *Engine[K] {
	defaults := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = defaults.MaxReconnects
	}
	if opts.ReconnectDelay < 0 {
		opts.ReconnectDelay = 0
	}
	if opts.Context == nil {
		opts.Context = defaults.Context
	}
	if opts.Logger == nil {
		opts.Logger = defaults.Logger
	}

	done := make(chan struct{})
	close(done)

	e := &Engine[K]{
		transport: transport,
		opts:      opts,
		logger:    opts.Logger,
		state:     StatePaused,
		url:       url,
		dest:      dest,
		tag:       tag,
		done:      done,
	}
	e.cond = sync.NewCond(&e.mu)
	e.qcond = sync.NewCond(&e.qmu)
	e.contentSize.Store(UnknownSize)
	return e
}

// Start begins a new attempt, or resumes a connected attempt that is paused.
// Blank URL or destination is reported as an error without any state change.
func (e *Engine[K]) Start() (Outcome, error) {
	e.mu.Lock()

	if e.active {
		if e.state == StateStopped {
			e.mu.Unlock()
			return OutcomeIgnored, ErrStopPending
		}
		if !e.connected || e.state != StatePaused {
			e.mu.Unlock()
			return OutcomeIgnored, nil
		}
		e.state = StateRunning
		e.resumed = true
		e.cond.Broadcast()
		e.post("running", func(o Observer[K]) { o.OnRunning(e) })
		src := e.url
		e.mu.Unlock()

		e.logger.Debug("Transfer resumed", zap.String("url", src))
		e.deliver()
		return OutcomeResumed, nil
	}

	if strings.TrimSpace(e.url) == "" {
		e.mu.Unlock()
		return OutcomeIgnored, ErrMissingURL
	}
	if strings.TrimSpace(e.dest) == "" {
		e.mu.Unlock()
		return OutcomeIgnored, ErrMissingDestination
	}

	// A fresh attempt re-enters the initial state until the connection opens
	e.state = StatePaused
	e.active = true
	e.connected = false
	e.resumed = false
	e.err = nil
	e.done = make(chan struct{})
	e.stopCh = make(chan struct{})
	e.transferred.Store(0)
	e.contentSize.Store(UnknownSize)

	src, dest, done, stopCh := e.url, e.dest, e.done, e.stopCh
	e.mu.Unlock()

	go e.run(src, dest, done, stopCh)
	return OutcomeStarted, nil
}

// Pause suspends a running transfer after the current chunk
func (e *Engine[K]) Pause() Outcome {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return OutcomeIgnored
	}
	e.state = StatePaused
	e.post("paused", func(o Observer[K]) { o.OnPaused(e) })
	e.mu.Unlock()

	e.deliver()
	return OutcomePaused
}

// Stop abandons a running or paused transfer. The loop deletes the destination file.
func (e *Engine[K]) Stop() Outcome {
	e.mu.Lock()
	if e.state != StateRunning && e.state != StatePaused {
		e.mu.Unlock()
		return OutcomeIgnored
	}
	e.state = StateStopped
	if e.active {
		close(e.stopCh)
	}
	e.cond.Broadcast()
	e.post("stopped", func(o Observer[K]) { o.OnStopped(e) })
	e.mu.Unlock()

	e.deliver()
	return OutcomeStopped
}

// State returns the current state
func (e *Engine[K]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// URL returns the source URL
func (e *Engine[K]) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

// SetURL changes the source URL. It fails while an attempt is in progress.
func (e *Engine[K]) SetURL(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return ErrTransferActive
	}
	e.url = url
	return nil
}

// Destination returns the output file path
func (e *Engine[K]) Destination() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dest
}

// SetDestination changes the output file path. It fails while an attempt is in progress.
func (e *Engine[K]) SetDestination(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return ErrTransferActive
	}
	e.dest = path
	return nil
}

// Tag returns the caller-supplied identifier
func (e *Engine[K]) Tag() K {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tag
}

// SetTag replaces the caller-supplied identifier
func (e *Engine[K]) SetTag(tag K) {
	e.mu.Lock()
	e.tag = tag
	e.mu.Unlock()
}

// SetObserver registers the single observer. Nil removes it.
func (e *Engine[K]) SetObserver(o Observer[K]) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

// Resumed reports whether the current attempt was resumed from a pause
func (e *Engine[K]) Resumed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resumed
}

// Err returns the cause of the last StateError, if any
func (e *Engine[K]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Done returns a channel closed when the current attempt's loop exits
func (e *Engine[K]) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Transferred returns the bytes written to the destination in the current attempt
func (e *Engine[K]) Transferred() int64 {
	return e.transferred.Load()
}

// ContentSize returns the total size reported by the server, or UnknownSize
func (e *Engine[K]) ContentSize() int64 {
	return e.contentSize.Load()
}

func (e *Engine[K]) run(src, dest string, done chan struct{}, stopCh <-chan struct{}) {
	var (
		file *os.File
		body io.ReadCloser
	)

	defer close(done)
	defer e.flush()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Transfer loop panicked",
				zap.String("url", src),
				zap.Any("panic", r),
				zap.Stack("stack"))
			e.abort(file, body, dest, fmt.Errorf("transfer: loop panic: %v", r))
		}
	}()

	e.logger.Info("Opening transfer", zap.String("url", src), zap.String("destination", dest))

	stream, err := e.transport.Open(e.opts.Context, src)
	if err != nil {
		e.abort(nil, nil, dest, err)
		return
	}
	body = stream.Body
	e.contentSize.Store(stream.Size)

	// Truncate: a fresh attempt always starts at byte zero
	file, err = os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		e.abort(nil, body, dest, fmt.Errorf("failed to open destination: %w", err))
		body = nil
		return
	}

	if !e.enterRunning() {
		e.discard(file, body, dest)
		return
	}

	e.logger.Info("Transfer running",
		zap.String("url", stream.URL),
		zap.Int("redirects", stream.Redirects),
		zap.Int64("size", stream.Size))

	buf := make([]byte, e.opts.ChunkSize)
	stalls := 0

	for {
		n, readErr := readChunk(body, buf)

		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				e.abort(file, body, dest, fmt.Errorf("failed to write %s: %w", dest, err))
				return
			}
			e.received(e.transferred.Add(int64(n)))
		}

		eof := readErr == io.EOF
		switch {
		case readErr == nil:
			stalls = 0
		case !eof:
			stalls++
			body.Close()
			body = nil

			if e.opts.MaxReconnects > 0 && stalls > e.opts.MaxReconnects {
				e.abort(file, nil, dest, fmt.Errorf("%w: %w", ErrReconnectExhausted, readErr))
				return
			}

			body, err = e.reconnect(src, readErr, stopCh)
			if errors.Is(err, errStopped) {
				e.discard(file, nil, dest)
				return
			}
			if err != nil {
				e.abort(file, nil, dest, err)
				return
			}
		}

		if stopped := e.awaitControl(); stopped {
			e.discard(file, body, dest)
			return
		}

		if eof {
			break
		}
	}

	body.Close()
	body = nil

	if err := file.Sync(); err != nil {
		e.abort(file, nil, dest, fmt.Errorf("failed to flush %s: %w", dest, err))
		return
	}
	if err := file.Close(); err != nil {
		file = nil
		e.abort(nil, nil, dest, fmt.Errorf("failed to close %s: %w", dest, err))
		return
	}
	file = nil

	e.complete(dest)
}

// readChunk fills buf unless the stream ends or fails first. A short final
// chunk is returned without error and the next call reports io.EOF.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			if err == io.EOF && n > 0 {
				return n, nil
			}
			return n, err
		}
	}
	return n, nil
}

// enterRunning performs the Paused -> Running transition once the connection is open.
// It returns false when the attempt was stopped while connecting.
func (e *Engine[K]) enterRunning() bool {
	e.mu.Lock()
	if !canTransition(e.state, StateRunning) {
		e.mu.Unlock()
		return false
	}
	e.state = StateRunning
	e.connected = true
	e.post("running", func(o Observer[K]) { o.OnRunning(e) })
	e.mu.Unlock()

	e.deliver()
	return true
}

// received reports progress, unless a pause or stop already took effect
func (e *Engine[K]) received(written int64) {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	total := e.contentSize.Load()
	e.post("data", func(o Observer[K]) { o.OnDataReceived(e, written, total) })
	e.mu.Unlock()

	e.deliver()
}

// awaitControl blocks while paused and reports whether the attempt was stopped
func (e *Engine[K]) awaitControl() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.state == StatePaused {
		e.cond.Wait()
	}
	return e.state == StateStopped
}

// reconnect reopens the source and discards the bytes already written
func (e *Engine[K]) reconnect(src string, cause error, stopCh <-chan struct{}) (io.ReadCloser, error) {
	skip := e.transferred.Load()
	delay := e.opts.ReconnectDelay

	for attempt := 1; e.opts.MaxReconnects < 0 || attempt <= e.opts.MaxReconnects; attempt++ {
		if e.State() == StateStopped {
			return nil, errStopped
		}

		e.logger.Warn("Stream interrupted, reconnecting",
			zap.String("url", src),
			zap.Int("attempt", attempt),
			zap.Int64("offset", skip),
			zap.NamedError("cause", cause))

		stream, err := e.transport.Open(e.opts.Context, src)
		if err == nil {
			if _, err = io.CopyN(io.Discard, stream.Body, skip); err == nil {
				return stream.Body, nil
			}
			stream.Body.Close()
			err = fmt.Errorf("failed to skip %d bytes after reconnect: %w", skip, err)
		}
		cause = err

		if err := e.sleep(delay, stopCh); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrReconnectExhausted, cause)
}

// sleep waits for the backoff delay and wakes early on Stop
func (e *Engine[K]) sleep(d time.Duration, stopCh <-chan struct{}) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-stopCh:
		return errStopped
	case <-e.opts.Context.Done():
		return e.opts.Context.Err()
	}
}

// complete moves the attempt to StateComplete, waiting out a pause that raced with end of stream
func (e *Engine[K]) complete(dest string) {
	e.mu.Lock()
	for e.state == StatePaused {
		e.cond.Wait()
	}
	if e.state == StateStopped {
		e.mu.Unlock()
		e.discard(nil, nil, dest)
		return
	}
	e.state = StateComplete
	e.active = false
	e.connected = false
	e.post("completed", func(o Observer[K]) { o.OnCompleted(e) })
	e.mu.Unlock()

	e.logger.Info("Transfer complete",
		zap.String("destination", dest),
		zap.Int64("bytes", e.transferred.Load()))
	e.deliver()
}

// discard cleans up after Stop. The Stopped notification already fired from Stop.
func (e *Engine[K]) discard(file *os.File, body io.ReadCloser, dest string) {
	closeAll(file, body)
	e.removeDestination(dest)

	e.mu.Lock()
	e.active = false
	e.connected = false
	e.resumed = false
	e.mu.Unlock()
	e.transferred.Store(0)

	e.logger.Info("Transfer stopped", zap.String("destination", dest))
}

// abort moves the attempt to StateError after removing the destination file
func (e *Engine[K]) abort(file *os.File, body io.ReadCloser, dest string, cause error) {
	closeAll(file, body)
	e.removeDestination(dest)

	e.mu.Lock()
	e.active = false
	e.connected = false
	if !canTransition(e.state, StateError) {
		// Stop won the race and already notified
		e.mu.Unlock()
		return
	}
	e.state = StateError
	e.err = cause
	e.cond.Broadcast()
	e.post("error", func(o Observer[K]) { o.OnError(e, cause) })
	e.mu.Unlock()

	e.logger.Error("Transfer failed",
		zap.String("destination", dest),
		zap.Int64("bytes", e.transferred.Load()),
		zap.Error(cause))
	e.deliver()
}

func (e *Engine[K]) removeDestination(dest string) {
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("Failed to remove destination", zap.String("destination", dest), zap.Error(err))
	}
}

func closeAll(file *os.File, body io.ReadCloser) {
	if body != nil {
		body.Close()
	}
	if file != nil {
		file.Close()
	}
}

// post queues a notification. Caller holds mu, so queue order is transition order.
func (e *Engine[K]) post(event string, fn func(Observer[K])) {
	e.qmu.Lock()
	e.pending = append(e.pending, notification[K]{event: event, fn: fn})
	e.qmu.Unlock()
}

// deliver runs queued notifications in order. When another goroutine is already
// delivering, including an observer calling back into the engine, it leaves the
// queue to that goroutine and returns.
func (e *Engine[K]) deliver() {
	e.qmu.Lock()
	if e.draining {
		e.qmu.Unlock()
		return
	}
	e.draining = true
	for len(e.pending) > 0 {
		n := e.pending[0]
		e.pending = e.pending[1:]
		e.qmu.Unlock()
		e.notify(n.event, n.fn)
		e.qmu.Lock()
	}
	e.pending = nil
	e.draining = false
	e.qcond.Broadcast()
	e.qmu.Unlock()
}

// flush waits until every queued notification has been delivered
func (e *Engine[K]) flush() {
	e.qmu.Lock()
	for e.draining || len(e.pending) > 0 {
		e.qcond.Wait()
	}
	e.qmu.Unlock()
}

// notify calls the observer outside the state lock. Observer panics are logged and swallowed.
func (e *Engine[K]) notify(event string, fn func(Observer[K])) {
	e.mu.Lock()
	o := e.observer
	e.mu.Unlock()
	if o == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Observer panicked", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	fn(o)
}
