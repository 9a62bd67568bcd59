package ops

import "github.com/distill-ml/distill/internal/tensor"

// Conv2DOp records a 2D convolution. Both backward kernels live on the
// backend so accelerated implementations can override them.
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	stride  int
	padding int
	output  *tensor.RawTensor
}

func NewConv2DOp(input, kernel *tensor.RawTensor, stride, padding int, output *tensor.RawTensor) *Conv2DOp {
	return &Conv2DOp{input: input, kernel: kernel, stride: stride, padding: padding, output: output}
}

func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

func (op *Conv2DOp) Output() *tensor.RawTensor { return op.output }

func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradInput := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	gradKernel := backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	return []*tensor.RawTensor{gradInput, gradKernel}
}
