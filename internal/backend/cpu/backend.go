// Package cpu implements the pure-Go reference backend.
package cpu

import (
	"fmt"
	"math"

	"github.com/distill-ml/distill/internal/tensor"
)

// Backend implements tensor.Backend on the CPU. All float kernels operate
// on float32; integer tensors only flow through data plumbing, never math.
type Backend struct {
	device tensor.Device
}

var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend.
func New() *Backend {
	return &Backend{device: tensor.CPU}
}

// Name returns the backend name.
func (cpu *Backend) Name() string { return "CPU" }

// Device returns the compute device.
func (cpu *Backend) Device() tensor.Device { return cpu.device }

// Add performs element-wise addition with broadcasting.
func (cpu *Backend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.elementwise("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *Backend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.elementwise("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *Backend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.elementwise("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *Backend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.elementwise("div", a, b, func(x, y float32) float32 { return x / y })
}

// elementwise applies a binary op with NumPy-style broadcasting. When both
// operands share a shape and the left one holds the only buffer reference
// the op runs in place.
func (cpu *Backend) elementwise(name string, a, b *tensor.RawTensor, op func(x, y float32) float32) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: only float32 supported, got %s and %s", name, a.DType(), b.DType()))
	}

	if !needsBroadcast {
		aData, bData := a.AsFloat32(), b.AsFloat32()
		if a.IsUnique() {
			for i := range aData {
				aData[i] = op(aData[i], bData[i])
			}
			return a
		}
		result := mustRaw(outShape, cpu.device)
		resData := result.AsFloat32()
		for i := range resData {
			resData[i] = op(aData[i], bData[i])
		}
		return result
	}

	result := mustRaw(outShape, cpu.device)
	resData := result.AsFloat32()
	aData, bData := a.AsFloat32(), b.AsFloat32()
	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)
	outStrides := outShape.ComputeStrides()

	for i := range resData {
		aIdx, bIdx := 0, 0
		rem := i
		for d := 0; d < len(outShape); d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			aIdx += coord * aStrides[d]
			bIdx += coord * bStrides[d]
		}
		resData[i] = op(aData[aIdx], bData[bIdx])
	}
	return result
}

// broadcastStrides maps a (possibly lower-rank) shape onto outShape strides,
// with stride 0 for broadcast dimensions.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	realStrides := shape.ComputeStrides()
	offset := len(outShape) - len(shape)
	for d := range outShape {
		src := d - offset
		if src < 0 || shape[src] == 1 {
			strides[d] = 0
		} else {
			strides[d] = realStrides[src]
		}
	}
	return strides
}

// MulScalar multiplies every element by a scalar.
func (cpu *Backend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := mustRaw(x.Shape(), cpu.device)
	xData := x.AsFloat32()
	resData := result.AsFloat32()
	for i, v := range xData {
		resData[i] = v * scalar
	}
	return result
}

// ReLU computes max(0, x) element-wise.
func (cpu *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := mustRaw(x.Shape(), cpu.device)
	xData := x.AsFloat32()
	resData := result.AsFloat32()
	for i, v := range xData {
		if v > 0 {
			resData[i] = v
		}
	}
	return result
}

// Softmax normalizes along the last dimension with the max-shift trick.
func (cpu *Backend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) < 1 {
		panic("softmax: tensor must have at least one dimension")
	}
	rowLen := shape[len(shape)-1]
	numRows := x.NumElements() / rowLen

	result := mustRaw(shape, cpu.device)
	xData := x.AsFloat32()
	resData := result.AsFloat32()

	for r := 0; r < numRows; r++ {
		row := xData[r*rowLen : (r+1)*rowLen]
		out := resData[r*rowLen : (r+1)*rowLen]

		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float32
		for i, v := range row {
			e := float32(math.Exp(float64(v - maxVal)))
			out[i] = e
			sum += e
		}
		for i := range out {
			out[i] /= sum
		}
	}
	return result
}

func mustRaw(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		panic(err)
	}
	return raw
}
