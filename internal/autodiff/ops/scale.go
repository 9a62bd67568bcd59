package ops

import "github.com/distill-ml/distill/internal/tensor"

// ScaleOp records multiplication by a compile-time constant scalar, used by
// the loss blending in distillation. d(s*x)/dx = s.
type ScaleOp struct {
	x      *tensor.RawTensor
	scalar float32
	output *tensor.RawTensor
}

func NewScaleOp(x *tensor.RawTensor, scalar float32, output *tensor.RawTensor) *ScaleOp {
	return &ScaleOp{x: x, scalar: scalar, output: output}
}

func (op *ScaleOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }
func (op *ScaleOp) Output() *tensor.RawTensor   { return op.output }

func (op *ScaleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}
