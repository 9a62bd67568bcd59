package cpu

import (
	"fmt"

	"github.com/distill-ml/distill/internal/tensor"
)

// Reshape returns a view with a new shape. The element count must match;
// the underlying buffer is shared.
func (cpu *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	view := t.Clone()
	view.SetShape(newShape)
	return view
}

// Transpose permutes tensor dimensions, materializing the result. With no
// axes given the order is reversed.
func (cpu *Backend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	rank := len(shape)

	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("transpose: got %d axes for rank-%d tensor", len(axes), rank))
	}
	seen := make([]bool, rank)
	for _, ax := range axes {
		if ax < 0 || ax >= rank || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for shape %v", axes, shape))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, rank)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result := mustRaw(newShape, cpu.device)
	srcData := t.AsFloat32()
	dstData := result.AsFloat32()
	srcStrides := shape.ComputeStrides()
	dstStrides := newShape.ComputeStrides()

	coords := make([]int, rank)
	for i := range dstData {
		rem := i
		for d := 0; d < rank; d++ {
			coords[d] = rem / dstStrides[d]
			rem %= dstStrides[d]
		}
		srcIdx := 0
		for d, ax := range axes {
			srcIdx += coords[d] * srcStrides[ax]
		}
		dstData[i] = srcData[srcIdx]
	}
	return result
}
