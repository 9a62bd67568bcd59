package ops

import "github.com/distill-ml/distill/internal/tensor"

// MaxPool2DOp records max pooling. Construction recomputes the flat index
// of each winning input element; the backward pass routes gradients through
// those positions only.
type MaxPool2DOp struct {
	input      *tensor.RawTensor
	kernelSize int
	stride     int
	maxIndices []int
	output     *tensor.RawTensor
}

func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{
		input:      input,
		kernelSize: kernelSize,
		stride:     stride,
		maxIndices: computeMaxIndices(input, output, kernelSize, stride),
		output:     output,
	}
}

func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *MaxPool2DOp) Output() *tensor.RawTensor   { return op.output }

func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := backend.MaxPool2DBackward(op.input, outputGrad, op.maxIndices, op.kernelSize, op.stride)
	return []*tensor.RawTensor{grad}
}

// computeMaxIndices finds the input position that produced each pooled
// output. Ties resolve to the first position in scan order, matching the
// forward kernel.
func computeMaxIndices(input, output *tensor.RawTensor, kernelSize, stride int) []int {
	inShape, outShape := input.Shape(), output.Shape()
	batch, ch, inH, inW := inShape[0], inShape[1], inShape[2], inShape[3]
	outH, outW := outShape[2], outShape[3]

	inData := input.AsFloat32()
	indices := make([]int, output.NumElements())

	for n := 0; n < batch; n++ {
		for c := 0; c < ch; c++ {
			planeBase := (n*ch + c) * inH * inW
			outBase := (n*ch + c) * outH * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					maxIdx := planeBase + (oy*stride)*inW + ox*stride
					maxVal := inData[maxIdx]
					for ky := 0; ky < kernelSize; ky++ {
						rowBase := planeBase + (oy*stride+ky)*inW
						for kx := 0; kx < kernelSize; kx++ {
							idx := rowBase + ox*stride + kx
							if inData[idx] > maxVal {
								maxVal = inData[idx]
								maxIdx = idx
							}
						}
					}
					indices[outBase+oy*outW+ox] = maxIdx
				}
			}
		}
	}
	return indices
}
