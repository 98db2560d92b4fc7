package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxFrameSize bounds the payload of a single frame. It fits a message
	// carrying four memrefs of MaxMemrefSize bytes.
	MaxFrameSize = 4*MaxMemrefSize + 1<<10

	frameHeaderSize = 4
)

// ErrFrameTooLarge is returned when a frame header announces more than MaxFrameSize bytes.
var ErrFrameTooLarge = errors.New("frame too large")

// Framing selects how message boundaries are recovered from a byte stream.
type Framing int

const (
	// LengthPrefixed precedes every payload with its length as a 4-byte
	// native-endian unsigned integer.
	LengthPrefixed Framing = iota

	// ReadToEOF sends one unframed payload per connection; the reader consumes
	// the stream until the writer half-closes it.
	ReadToEOF
)

func (f Framing) String() string {
	switch f {
	case LengthPrefixed:
		return "length-prefix"
	case ReadToEOF:
		return "eof"
	default:
		return fmt.Sprintf("Framing(%d)", int(f))
	}
}

// ParseFraming is the inverse of Framing.String.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "length-prefix", "length-prefixed":
		return LengthPrefixed, nil
	case "eof", "read-to-eof":
		return ReadToEOF, nil
	default:
		return 0, fmt.Errorf("unknown framing %q", s)
	}
}

// WriteFrame writes payload preceded by its length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(payload))
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	binary.NativeEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)

	_, err := w.Write(buf)
	return errors.Wrap(err, "writing frame")
}

// ReadFrame reads exactly one frame written by WriteFrame: first the 4-byte
// header, then exactly as many bytes as it announces.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "reading frame header")
	}

	size := binary.NativeEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "header announces %d bytes", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "reading frame payload")
	}

	return payload, nil
}

// WriteMessage encodes m and writes it using framing f. With ReadToEOF the
// caller is expected to half-close or close w afterwards.
func WriteMessage(w io.Writer, f Framing, m Message) error {
	payload, err := Marshal(m)
	if err != nil {
		return err
	}

	if f == LengthPrefixed {
		return WriteFrame(w, payload)
	}

	if len(payload) > MaxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(payload))
	}

	_, err = w.Write(payload)
	return errors.Wrap(err, "writing message")
}

// ReadMessage reads and decodes one message using framing f.
func ReadMessage(r io.Reader, f Framing) (Message, error) {
	var (
		payload []byte
		err     error
	)

	if f == LengthPrefixed {
		payload, err = ReadFrame(r)
	} else {
		payload, err = readToEOF(r)
	}
	if err != nil {
		return nil, err
	}

	return Unmarshal(payload)
}

func readToEOF(r io.Reader) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(r, MaxFrameSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "reading message")
	}
	if len(payload) > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "more than %d bytes before EOF", MaxFrameSize)
	}

	return payload, nil
}
