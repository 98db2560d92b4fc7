package protocol

import "fmt"

// ParamType tags a Parameter slot.
type ParamType uint32

const (
	ParamNone         ParamType = 0
	ParamValueInput   ParamType = 1
	ParamValueOutput  ParamType = 2
	ParamValueInout   ParamType = 3
	ParamMemrefInput  ParamType = 5
	ParamMemrefOutput ParamType = 6
	ParamMemrefInout  ParamType = 7
)

// ParamTypeFromUint32 maps a raw wire value to a ParamType.
// Unknown values become ParamNone.
func ParamTypeFromUint32(v uint32) ParamType {
	switch ParamType(v) {
	case ParamValueInput, ParamValueOutput, ParamValueInout,
		ParamMemrefInput, ParamMemrefOutput, ParamMemrefInout:
		return ParamType(v)
	default:
		return ParamNone
	}
}

func (p ParamType) String() string {
	switch p {
	case ParamNone:
		return "None"
	case ParamValueInput:
		return "ValueInput"
	case ParamValueOutput:
		return "ValueOutput"
	case ParamValueInout:
		return "ValueInout"
	case ParamMemrefInput:
		return "MemrefInput"
	case ParamMemrefOutput:
		return "MemrefOutput"
	case ParamMemrefInout:
		return "MemrefInout"
	default:
		return fmt.Sprintf("ParamType(%d)", uint32(p))
	}
}

// IsValue reports whether p carries a Value pair.
func (p ParamType) IsValue() bool {
	return p == ParamValueInput || p == ParamValueOutput || p == ParamValueInout
}

// IsMemref reports whether p carries a byte buffer.
func (p ParamType) IsMemref() bool {
	return p == ParamMemrefInput || p == ParamMemrefOutput || p == ParamMemrefInout
}

// Value is the two-word payload of a value parameter.
type Value struct {
	A uint32
	B uint32
}

// Parameter is a single slot of a Parameters block.
type Parameter struct {
	Type  ParamType
	Data  []byte
	Value Value
}

// Parameters is the fixed 4-slot argument block exchanged on every call.
// Slot order is significant.
type Parameters [4]Parameter

// NewValue returns a value parameter of type t.
func NewValue(t ParamType, a, b uint32) Parameter {
	return Parameter{
		Type:  t,
		Value: Value{A: a, B: b},
	}
}

// NewMemref returns a memref parameter of type t carrying data.
func NewMemref(t ParamType, data []byte) Parameter {
	return Parameter{
		Type: t,
		Data: data,
	}
}

// Types returns the tag of every slot, in order.
func (p Parameters) Types() [4]ParamType {
	return [4]ParamType{p[0].Type, p[1].Type, p[2].Type, p[3].Type}
}

// Clone returns a deep copy of p, so that buffers are never shared between
// the copy and the original.
func (p Parameters) Clone() Parameters {
	var out Parameters
	for i := range p {
		out[i] = p[i]
		if p[i].Data != nil {
			out[i].Data = append([]byte(nil), p[i].Data...)
		}
	}

	return out
}
