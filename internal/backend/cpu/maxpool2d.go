package cpu

import (
	"fmt"
	"math"

	"github.com/distill-ml/distill/internal/tensor"
)

// MaxPool2D applies 2D max pooling over NCHW input. Ties resolve to the
// first window position in scan order.
func (cpu *Backend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inShape := input.Shape()
	if len(inShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input, got %v", inShape))
	}
	batch, ch, inH, inW := inShape[0], inShape[1], inShape[2], inShape[3]
	outH := (inH-kernelSize)/stride + 1
	outW := (inW-kernelSize)/stride + 1
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("maxpool2d: window %d too large for input %dx%d", kernelSize, inH, inW))
	}

	result := mustRaw(tensor.Shape{batch, ch, outH, outW}, cpu.device)
	inData := input.AsFloat32()
	resData := result.AsFloat32()

	for n := 0; n < batch; n++ {
		for c := 0; c < ch; c++ {
			planeBase := (n*ch + c) * inH * inW
			outBase := (n*ch + c) * outH * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					maxVal := float32(math.Inf(-1))
					for ky := 0; ky < kernelSize; ky++ {
						iy := oy*stride + ky
						rowBase := planeBase + iy*inW
						for kx := 0; kx < kernelSize; kx++ {
							ix := ox*stride + kx
							if v := inData[rowBase+ix]; v > maxVal {
								maxVal = v
							}
						}
					}
					resData[outBase+oy*outW+ox] = maxVal
				}
			}
		}
	}
	return result
}

// MaxPool2DBackward routes each output gradient to the input position that
// produced the corresponding maximum.
func (cpu *Backend) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	result := mustRaw(input.Shape(), cpu.device)
	gData := grad.AsFloat32()
	resData := result.AsFloat32()
	if len(maxIndices) != len(gData) {
		panic(fmt.Sprintf("maxpool2d backward: %d indices for %d gradients", len(maxIndices), len(gData)))
	}
	for i, idx := range maxIndices {
		resData[idx] += gData[i]
	}
	return result
}
