package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luciancaetano/kephaslobby/internal/protocol"
)

var (
	// ErrClosed is returned when writing to a closed connection.
	ErrClosed = errors.New("session: connection is closed")
	// ErrQueueFull is returned by Offer when the outbound queue has no room.
	ErrQueueFull = errors.New("session: outbound queue full")
)

const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 10 * time.Second
)

// Conn is the byte stream a Writer writes frames to.
type Conn interface {
	Write(p []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WriterConfig tunes a Writer.
type WriterConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Writer serializes all writes to one connection through a single write pump
// goroutine. Each Writer owns its queue, so a slow client never holds a lock
// shared with other connections.
type Writer struct {
	conn         Conn
	writeTimeout time.Duration
	queue        chan []byte
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool
	done         chan struct{}
}

// NewWriter creates a Writer for conn and starts its write pump.
func NewWriter(conn Conn, cfg WriterConfig) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	w := &Writer{
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		queue:        make(chan []byte, cfg.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go w.writePump()

	return w
}

// Send encodes msg and queues it for delivery. It blocks while the queue is
// full until ctx is done or the connection closes.
func (w *Writer) Send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return w.enqueue(ctx, data)
}

// SendMessages encodes msgs as consecutive frames and queues them as one
// unit, so no other message can interleave with the batch.
func (w *Writer) SendMessages(ctx context.Context, msgs []protocol.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	data, err := protocol.EncodeBatch(msgs)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return w.enqueue(ctx, data)
}

// Offer queues pre-encoded frames without blocking.
func (w *Writer) Offer(data []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}

	select {
	case w.queue <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) enqueue(ctx context.Context, data []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}

	select {
	case w.queue <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrClosed
	}
}

// Close stops the write pump and closes the connection. Queued frames that
// were not yet written are dropped.
func (w *Writer) Close() error {
	// Cancel before taking the lock so blocked senders release their read lock.
	w.cancel()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	return w.conn.Close()
}

// Done is closed once the write pump has exited.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// writePump pumps frames from the queue to the connection
func (w *Writer) writePump() {
	defer close(w.done)

	for {
		select {
		case data := <-w.queue:
			w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
			if _, err := w.conn.Write(data); err != nil {
				w.Close()
				return
			}

		case <-w.ctx.Done():
			return
		}
	}
}
