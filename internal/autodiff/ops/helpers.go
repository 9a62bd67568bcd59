package ops

import (
	"fmt"

	"github.com/distill-ml/distill/internal/tensor"
)

// reduceBroadcast sums a gradient down to the target shape, undoing any
// broadcasting done in the forward pass. Broadcasting aligns shapes from
// the right, so leading extra dimensions are summed away first, then every
// dimension where the target is 1.
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		// Clone so inplace accumulation never mutates a shared gradient.
		return grad.Clone()
	}

	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = sumAlongDimension(result, 0)
		if len(result.Shape()) > len(targetShape) {
			result = backend.Reshape(result, result.Shape()[1:])
		}
	}

	resShape := result.Shape()
	for i := range targetShape {
		if targetShape[i] == 1 && resShape[i] > 1 {
			result = sumAlongDimension(result, i)
			resShape = result.Shape()
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// sumAlongDimension sums float32 data along dim, keeping the dimension
// with size 1.
func sumAlongDimension(t *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := t.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sumAlongDimension: invalid dimension %d for shape %v", dim, shape))
	}

	outShape := shape.Clone()
	outShape[dim] = 1
	result := newGrad(outShape, t)

	data := t.AsFloat32()
	out := result.AsFloat32()
	strides := shape.ComputeStrides()

	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	inner := strides[dim]
	dimSize := shape[dim]

	for o := 0; o < outer; o++ {
		base := o * dimSize * inner
		outBase := o * inner
		for k := 0; k < dimSize; k++ {
			row := data[base+k*inner : base+(k+1)*inner]
			for i, v := range row {
				out[outBase+i] += v
			}
		}
	}
	return result
}

// newGrad allocates a zeroed float32 gradient. Allocation only fails on an
// invalid shape, which here would be a bug.
func newGrad(shape tensor.Shape, like *tensor.RawTensor) *tensor.RawTensor {
	grad, err := tensor.NewRaw(shape, tensor.Float32, like.Device())
	if err != nil {
		panic(fmt.Sprintf("ops: allocating gradient: %v", err))
	}
	return grad
}

// softmaxRow computes softmax of one row with the max-shift trick.
func softmaxRow(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range logits {
		probs[i] = exp32(v - maxVal)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// logSoftmaxRow computes log-softmax of one row via log-sum-exp.
func logSoftmaxRow(logits []float32) []float32 {
	result := make([]float32, len(logits))
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sumExp float32
	for _, v := range logits {
		sumExp += exp32(v - maxVal)
	}
	logSumExp := maxVal + log32(sumExp)
	for i, v := range logits {
		result[i] = v - logSumExp
	}
	return result
}
