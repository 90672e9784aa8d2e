package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	headerSize     = 4
	maxPayloadSize = 10 * 1024 * 1024 // 10MB max payload size
)

var (
	// ErrFrameTooLarge is returned when a frame declares or needs a payload
	// larger than the configured maximum.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	// ErrMalformedFrame is returned when a frame payload is not one JSON object.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
)

// Message is one decoded wire message: a JSON object keyed by strings.
// Numbers decode as json.Number.
type Message map[string]any

// Command returns the message discriminator.
func (m Message) Command() (string, bool) {
	v, ok := m["command"].(string)
	return v, ok
}

// Lookup returns the raw value for key and whether the key is present.
// A present key may hold nil.
func (m Message) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// DefaultMaxFrameSize returns the default payload cap.
func DefaultMaxFrameSize() int {
	return maxPayloadSize
}

// Encode serializes msg and prefixes it with its 4-byte big-endian length.
func Encode(msg Message) ([]byte, error) {
	return appendFrame(nil, msg, maxPayloadSize)
}

// EncodeBatch encodes msgs as consecutive frames in one buffer. Order is
// preserved, so a reader recovers the same sequence and boundaries.
func EncodeBatch(msgs []Message) ([]byte, error) {
	var out []byte
	for _, msg := range msgs {
		var err error
		if out, err = appendFrame(out, msg, maxPayloadSize); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendFrame(dst []byte, msg Message, limit int) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode message: %w", err)
	}
	if len(payload) > limit {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrFrameTooLarge, len(payload), limit)
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...), nil
}

// Decoder turns a byte stream into messages. It keeps any trailing partial
// frame buffered until the next Feed. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf      []byte
	maxFrame int
}

// NewDecoder returns a Decoder rejecting frames larger than maxFrame bytes.
// A non-positive maxFrame selects DefaultMaxFrameSize.
func NewDecoder(maxFrame int) *Decoder {
	if maxFrame <= 0 {
		maxFrame = maxPayloadSize
	}
	return &Decoder{maxFrame: maxFrame}
}

// Feed appends p to the buffered stream and returns every complete message.
//
// A non-nil error is fatal for the stream: messages decoded before the bad
// frame are still returned, and the connection should be closed.
func (d *Decoder) Feed(p []byte) ([]Message, error) {
	d.buf = append(d.buf, p...)

	var msgs []Message
	off := 0
	for len(d.buf)-off >= headerSize {
		size := binary.BigEndian.Uint32(d.buf[off : off+headerSize])
		if uint64(size) > uint64(d.maxFrame) {
			d.buf = nil
			return msgs, fmt.Errorf("%w: declared %d bytes, maximum %d", ErrFrameTooLarge, size, d.maxFrame)
		}
		end := off + headerSize + int(size)
		if len(d.buf) < end {
			break
		}

		msg, err := decodePayload(d.buf[off+headerSize : end])
		if err != nil {
			d.buf = nil
			return msgs, err
		}
		msgs = append(msgs, msg)
		off = end
	}

	// Keep only the unconsumed tail; copying detaches it from the consumed prefix.
	if off > 0 {
		d.buf = append([]byte(nil), d.buf[off:]...)
	}
	return msgs, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func decodePayload(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedFrame)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedFrame)
	}
	return msg, nil
}
