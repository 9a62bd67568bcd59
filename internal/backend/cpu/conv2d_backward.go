package cpu

import (
	"fmt"

	"github.com/distill-ml/distill/internal/tensor"
)

// Conv2DInputBackward computes the gradient of a convolution with respect
// to its input: the output gradient is scattered back through every kernel
// tap that touched each input pixel.
func (cpu *Backend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inShape, kShape, gShape := input.Shape(), kernel.Shape(), grad.Shape()
	batch, inCh, inH, inW := inShape[0], inShape[1], inShape[2], inShape[3]
	outCh, _, kH, kW := kShape[0], kShape[1], kShape[2], kShape[3]
	outH, outW := gShape[2], gShape[3]
	if gShape[0] != batch || gShape[1] != outCh {
		panic(fmt.Sprintf("conv2d input backward: gradient shape %v does not match input %v kernel %v", gShape, inShape, kShape))
	}

	result := mustRaw(inShape, cpu.device)
	kData := kernel.AsFloat32()
	gData := grad.AsFloat32()
	resData := result.AsFloat32()

	for n := 0; n < batch; n++ {
		gBase := n * outCh * outH * outW
		iBase := n * inCh * inH * inW
		for oc := 0; oc < outCh; oc++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					g := gData[gBase+(oc*outH+oy)*outW+ox]
					if g == 0 {
						continue
					}
					for ic := 0; ic < inCh; ic++ {
						kBase := ((oc*inCh + ic) * kH) * kW
						for ky := 0; ky < kH; ky++ {
							iy := oy*stride + ky - padding
							if iy < 0 || iy >= inH {
								continue
							}
							for kx := 0; kx < kW; kx++ {
								ix := ox*stride + kx - padding
								if ix < 0 || ix >= inW {
									continue
								}
								resData[iBase+(ic*inH+iy)*inW+ix] += g * kData[kBase+ky*kW+kx]
							}
						}
					}
				}
			}
		}
	}
	return result
}

// Conv2DKernelBackward computes the gradient of a convolution with respect
// to its kernel: a correlation of the input with the output gradient.
func (cpu *Backend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inShape, kShape, gShape := input.Shape(), kernel.Shape(), grad.Shape()
	batch, inCh, inH, inW := inShape[0], inShape[1], inShape[2], inShape[3]
	outCh, _, kH, kW := kShape[0], kShape[1], kShape[2], kShape[3]
	outH, outW := gShape[2], gShape[3]

	result := mustRaw(kShape, cpu.device)
	inData := input.AsFloat32()
	gData := grad.AsFloat32()
	resData := result.AsFloat32()

	for n := 0; n < batch; n++ {
		gBase := n * outCh * outH * outW
		iBase := n * inCh * inH * inW
		for oc := 0; oc < outCh; oc++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					g := gData[gBase+(oc*outH+oy)*outW+ox]
					if g == 0 {
						continue
					}
					for ic := 0; ic < inCh; ic++ {
						kBase := ((oc*inCh + ic) * kH) * kW
						for ky := 0; ky < kH; ky++ {
							iy := oy*stride + ky - padding
							if iy < 0 || iy >= inH {
								continue
							}
							for kx := 0; kx < kW; kx++ {
								ix := ox*stride + kx - padding
								if ix < 0 || ix >= inW {
									continue
								}
								resData[kBase+ky*kW+kx] += g * inData[iBase+(ic*inH+iy)*inW+ix]
							}
						}
					}
				}
			}
		}
	}
	return result
}
