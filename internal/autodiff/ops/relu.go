package ops

import "github.com/distill-ml/distill/internal/tensor"

// ReLUOp records the rectifier. Gradient passes only where the input was
// positive.
type ReLUOp struct {
	x      *tensor.RawTensor
	output *tensor.RawTensor
}

func NewReLUOp(x, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{x: x, output: output}
}

func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }
func (op *ReLUOp) Output() *tensor.RawTensor   { return op.output }

func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := newGrad(op.x.Shape(), op.x)
	xData := op.x.AsFloat32()
	gData := outputGrad.AsFloat32()
	out := grad.AsFloat32()
	for i, v := range xData {
		if v > 0 {
			out[i] = gData[i]
		}
	}
	return []*tensor.RawTensor{grad}
}
