package api

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxMessageSize is the maximum allowed frame payload (50MB).
const MaxMessageSize = 50 * 1024 * 1024

// errorPrefix marks a frame that carries an error text instead of an Arrow
// stream. Arrow IPC streams never start with these bytes.
var errorPrefix = []byte("ERR ")

// Common errors for framing operations
var (
	ErrMessageTooLarge = errors.New("message size exceeds maximum allowed size")
	ErrRemote          = errors.New("remote error")
)

// ReadMessage reads a length-prefixed message from the reader.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, length, MaxMessageSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return buf, nil
}

// WriteMessage writes a length-prefixed message to the writer.
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > math.MaxUint32 || len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	// Header and body go out in a single Write.
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data))) // #nosec G115 - bounds checked above
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// WriteError sends err as an error frame.
func WriteError(w io.Writer, err error) error {
	return WriteMessage(w, append(append([]byte(nil), errorPrefix...), err.Error()...))
}

// CheckError returns an ErrRemote-wrapped error if data is an error frame.
func CheckError(data []byte) error {
	if bytes.HasPrefix(data, errorPrefix) {
		return fmt.Errorf("%w: %s", ErrRemote, data[len(errorPrefix):])
	}
	return nil
}
