package ops

import "github.com/distill-ml/distill/internal/tensor"

// SoftmaxOp records softmax over the last dimension. The backward pass uses
// the saved output s:
//
//	dL/dx_j = s_j * (dL/ds_j - Σ_k dL/ds_k * s_k)
type SoftmaxOp struct {
	x      *tensor.RawTensor
	output *tensor.RawTensor
}

func NewSoftmaxOp(x, output *tensor.RawTensor) *SoftmaxOp {
	return &SoftmaxOp{x: x, output: output}
}

func (op *SoftmaxOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }
func (op *SoftmaxOp) Output() *tensor.RawTensor   { return op.output }

func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.x.Shape()
	rowLen := shape[len(shape)-1]
	numRows := op.x.NumElements() / rowLen

	grad := newGrad(shape, op.x)
	sData := op.output.AsFloat32()
	gData := outputGrad.AsFloat32()
	out := grad.AsFloat32()

	for r := 0; r < numRows; r++ {
		s := sData[r*rowLen : (r+1)*rowLen]
		g := gData[r*rowLen : (r+1)*rowLen]
		o := out[r*rowLen : (r+1)*rowLen]

		var dot float32
		for i := range s {
			dot += g[i] * s[i]
		}
		for i := range s {
			o[i] = s[i] * (g[i] - dot)
		}
	}
	return []*tensor.RawTensor{grad}
}
