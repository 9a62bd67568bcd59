// Package tensor provides the core tensor types shared by every backend.
package tensor

// DType is the compile-time constraint for supported tensor element types.
type DType interface {
	~float32 | ~int32 | ~uint8
}

// DataType is the runtime type tag of a RawTensor.
type DataType int

// Supported data types. Float32 carries activations, gradients and
// parameters; Int32 carries class labels; Uint8 carries raw pixel data.
const (
	Float32 DataType = iota
	Int32
	Uint8
)

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Uint8:
		return 1
	default:
		panic("unknown data type")
	}
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// inferDataType maps a generic element type to its runtime tag.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case int32:
		return Int32
	case uint8:
		return Uint8
	default:
		panic("unsupported type")
	}
}
