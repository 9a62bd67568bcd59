package ops

import "github.com/distill-ml/distill/internal/tensor"

// ReshapeOp records a reshape so gradients flow back to reshaped
// parameters and activations with the original shape restored.
type ReshapeOp struct {
	x      *tensor.RawTensor
	output *tensor.RawTensor
}

func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{x: x, output: output}
}

func (op *ReshapeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }
func (op *ReshapeOp) Output() *tensor.RawTensor   { return op.output }

func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.x.Shape())}
}

// TransposeOp records a dimension permutation. The backward pass applies
// the inverse permutation to the gradient.
type TransposeOp struct {
	x      *tensor.RawTensor
	axes   []int
	output *tensor.RawTensor
}

func NewTransposeOp(x *tensor.RawTensor, axes []int, output *tensor.RawTensor) *TransposeOp {
	return &TransposeOp{x: x, axes: axes, output: output}
}

func (op *TransposeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }
func (op *TransposeOp) Output() *tensor.RawTensor   { return op.output }

func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	axes := op.axes
	if len(axes) == 0 {
		// Default transpose reverses dimensions; it is its own inverse.
		return []*tensor.RawTensor{backend.Transpose(outputGrad)}
	}
	inverse := make([]int, len(axes))
	for i, ax := range axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}
