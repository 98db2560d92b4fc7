package protocol

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxMemrefSize is the largest buffer a single memref parameter may carry.
const MaxMemrefSize = 4 << 20

var (
	// ErrDecode is returned, wrapped with details, for any input Unmarshal cannot
	// turn into a Message.
	ErrDecode = errors.New("malformed message")

	// ErrEncode is returned when a message holds values the protocol cannot carry.
	ErrEncode = errors.New("message cannot be encoded")
)

// Marshal returns the binary encoding of m.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.Wrap(ErrEncode, "nil message")
	}

	body, err := appendBody(nil, m)
	if err != nil {
		return nil, err
	}

	b := protowire.AppendTag(nil, protowire.Number(m.Kind()), protowire.BytesType)
	return protowire.AppendBytes(b, body), nil
}

// Unmarshal decodes a single message from b. The whole of b must be consumed.
func Unmarshal(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrDecode, "empty input")
	}

	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, errors.Wrapf(ErrDecode, "message tag: %v", protowire.ParseError(n))
	}
	if typ != protowire.BytesType {
		return nil, errors.Wrapf(ErrDecode, "message %d has wire type %d", num, typ)
	}

	body, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		return nil, errors.Wrapf(ErrDecode, "message body: %v", protowire.ParseError(m))
	}
	if rest := len(b) - n - m; rest != 0 {
		return nil, errors.Wrapf(ErrDecode, "%d trailing bytes", rest)
	}

	msg := newMessage(Kind(num))
	if msg == nil {
		return nil, errors.Wrapf(ErrDecode, "unknown message kind %d", num)
	}

	if err := decodeBody(body, msg); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", msg.Kind())
	}

	return msg, nil
}

func newMessage(k Kind) Message {
	switch k {
	case KindOpenSession:
		return &OpenSession{}
	case KindCloseSession:
		return &CloseSession{}
	case KindInvokeCommand:
		return &InvokeCommand{}
	case KindRequestCancellation:
		return &RequestCancellation{}
	case KindDestroy:
		return &Destroy{}
	case KindOpenSessionResult:
		return &OpenSessionResult{}
	case KindCloseSessionResult:
		return &CloseSessionResult{}
	case KindInvokeCommandResult:
		return &InvokeCommandResult{}
	case KindRequestCancellationResult:
		return &RequestCancellationResult{}
	case KindDestroyResult:
		return &DestroyResult{}
	case KindRegister:
		return &Register{}
	default:
		return nil
	}
}

func appendBody(b []byte, m Message) ([]byte, error) {
	var err error

	switch msg := m.(type) {
	case *OpenSession:
		b = appendString(b, 1, msg.UUID)
		b = appendUint32(b, 2, msg.ConnectionMethod)
		b, err = appendParams(b, 3, msg.Params)
	case *CloseSession:
		b = appendUint32(b, 1, msg.SessionID)
	case *InvokeCommand:
		b = appendUint32(b, 1, msg.SessionID)
		b = appendUint32(b, 2, msg.CommandID)
		b, err = appendParams(b, 3, msg.Params)
	case *RequestCancellation:
		b = appendUint32(b, 1, msg.SessionID)
	case *Destroy:
	case *OpenSessionResult:
		b = appendUint32(b, 1, msg.Status)
		b = appendUint32(b, 2, msg.SessionID)
	case *CloseSessionResult:
		b = appendUint32(b, 1, msg.Status)
		b = appendUint32(b, 2, msg.SessionID)
	case *InvokeCommandResult:
		b = appendUint32(b, 1, msg.Status)
		b = appendUint32(b, 2, msg.SessionID)
		b = appendUint32(b, 3, msg.CommandID)
		b, err = appendParams(b, 4, msg.Params)
	case *RequestCancellationResult:
		b = appendUint32(b, 1, msg.Status)
		b = appendUint32(b, 2, msg.SessionID)
	case *DestroyResult:
		b = appendUint32(b, 1, msg.Status)
	case *Register:
		b = appendString(b, 1, msg.UUID)
	default:
		return nil, errors.Wrapf(ErrEncode, "unsupported message %T", m)
	}

	return b, err
}

func decodeBody(b []byte, m Message) error {
	switch msg := m.(type) {
	case *OpenSession:
		return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			switch num {
			case 1:
				return consumeString(typ, v, &msg.UUID)
			case 2:
				return consumeUint32(typ, v, &msg.ConnectionMethod)
			case 3:
				return consumeParams(typ, v, &msg.Params)
			}
			return 0, nil
		})
	case *CloseSession:
		return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			if num == 1 {
				return consumeUint32(typ, v, &msg.SessionID)
			}
			return 0, nil
		})
	case *InvokeCommand:
		return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			switch num {
			case 1:
				return consumeUint32(typ, v, &msg.SessionID)
			case 2:
				return consumeUint32(typ, v, &msg.CommandID)
			case 3:
				return consumeParams(typ, v, &msg.Params)
			}
			return 0, nil
		})
	case *RequestCancellation:
		return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			if num == 1 {
				return consumeUint32(typ, v, &msg.SessionID)
			}
			return 0, nil
		})
	case *Destroy:
		return walk(b, func(protowire.Number, protowire.Type, []byte) (int, error) {
			return 0, nil
		})
	case *OpenSessionResult:
		return walk(b, statusAndSession(&msg.Status, &msg.SessionID))
	case *CloseSessionResult:
		return walk(b, statusAndSession(&msg.Status, &msg.SessionID))
	case *RequestCancellationResult:
		return walk(b, statusAndSession(&msg.Status, &msg.SessionID))
	case *InvokeCommandResult:
		return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			switch num {
			case 1:
				return consumeUint32(typ, v, &msg.Status)
			case 2:
				return consumeUint32(typ, v, &msg.SessionID)
			case 3:
				return consumeUint32(typ, v, &msg.CommandID)
			case 4:
				return consumeParams(typ, v, &msg.Params)
			}
			return 0, nil
		})
	case *DestroyResult:
		return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			if num == 1 {
				return consumeUint32(typ, v, &msg.Status)
			}
			return 0, nil
		})
	case *Register:
		return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			if num == 1 {
				return consumeString(typ, v, &msg.UUID)
			}
			return 0, nil
		})
	}

	return errors.Wrapf(ErrDecode, "unsupported message %T", m)
}

func statusAndSession(status, sessionID *uint32) fieldFunc {
	return func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint32(typ, v, status)
		case 2:
			return consumeUint32(typ, v, sessionID)
		}
		return 0, nil
	}
}

// fieldFunc consumes the value of a known field and returns its length.
// Returning 0 with a nil error marks the field as unknown, and walk skips it.
type fieldFunc func(num protowire.Number, typ protowire.Type, v []byte) (int, error)

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrapf(ErrDecode, "field tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}

		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return errors.Wrapf(ErrDecode, "field %d: %v", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}

	return nil
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendParams(b []byte, num protowire.Number, params Parameters) ([]byte, error) {
	var block []byte
	for i, p := range params {
		if len(p.Data) > MaxMemrefSize {
			return nil, errors.Wrapf(ErrEncode, "parameter %d: %d bytes exceeds the %d bytes memref limit", i, len(p.Data), MaxMemrefSize)
		}

		var slot []byte
		slot = appendUint32(slot, 1, uint32(p.Type))
		slot = appendBytes(slot, 2, p.Data)
		slot = appendUint32(slot, 3, p.Value.A)
		slot = appendUint32(slot, 4, p.Value.B)

		block = appendBytes(block, protowire.Number(i+1), slot)
	}

	return appendBytes(b, num, block), nil
}

func consumeUint32(typ protowire.Type, b []byte, dst *uint32) (int, error) {
	if typ != protowire.VarintType {
		return 0, errors.Wrapf(ErrDecode, "expected varint, got wire type %d", typ)
	}

	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, errors.Wrapf(ErrDecode, "varint: %v", protowire.ParseError(n))
	}
	if v > math.MaxUint32 {
		return 0, errors.Wrapf(ErrDecode, "value %d overflows uint32", v)
	}

	*dst = uint32(v)
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errors.Wrapf(ErrDecode, "expected length-delimited field, got wire type %d", typ)
	}

	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, errors.Wrapf(ErrDecode, "bytes: %v", protowire.ParseError(n))
	}

	return v, n, nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}

	*dst = string(v)
	return n, nil
}

func consumeParams(typ protowire.Type, b []byte, dst *Parameters) (int, error) {
	block, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}

	var params Parameters
	err = walk(block, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num < 1 || num > protowire.Number(len(params)) {
			return 0, nil
		}

		slot, m, err := consumeBytes(typ, v)
		if err != nil {
			return 0, err
		}

		p, err := decodeParameter(slot)
		if err != nil {
			return 0, errors.Wrapf(err, "parameter %d", num-1)
		}

		params[num-1] = p
		return m, nil
	})
	if err != nil {
		return 0, err
	}

	*dst = params
	return n, nil
}

func decodeParameter(b []byte) (Parameter, error) {
	var (
		p   Parameter
		raw uint32
	)

	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint32(typ, v, &raw)
		case 2:
			data, n, err := consumeBytes(typ, v)
			if err != nil {
				return 0, err
			}
			if len(data) > MaxMemrefSize {
				return 0, errors.Wrapf(ErrDecode, "memref of %d bytes exceeds the %d bytes limit", len(data), MaxMemrefSize)
			}
			if len(data) > 0 {
				p.Data = append([]byte(nil), data...)
			} else {
				p.Data = nil
			}
			return n, nil
		case 3:
			return consumeUint32(typ, v, &p.Value.A)
		case 4:
			return consumeUint32(typ, v, &p.Value.B)
		}
		return 0, nil
	})
	if err != nil {
		return Parameter{}, err
	}

	p.Type = ParamTypeFromUint32(raw)
	return p, nil
}
