package cpu

import (
	"fmt"

	"github.com/distill-ml/distill/internal/tensor"
)

// Conv2D performs a 2D cross-correlation over NCHW input with an
// [outCh, inCh, kH, kW] kernel, lowered to a matrix product via im2col.
func (cpu *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inShape, kShape := input.Shape(), kernel.Shape()
	if len(inShape) != 4 || len(kShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input and kernel, got %v and %v", inShape, kShape))
	}
	batch, inCh, inH, inW := inShape[0], inShape[1], inShape[2], inShape[3]
	outCh, kInCh, kH, kW := kShape[0], kShape[1], kShape[2], kShape[3]
	if inCh != kInCh {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", inCh, kInCh))
	}

	outH := (inH+2*padding-kH)/stride + 1
	outW := (inW+2*padding-kW)/stride + 1
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("conv2d: kernel %dx%d too large for input %dx%d with padding %d", kH, kW, inH, inW, padding))
	}

	result := mustRaw(tensor.Shape{batch, outCh, outH, outW}, cpu.device)
	inData := input.AsFloat32()
	kData := kernel.AsFloat32()
	resData := result.AsFloat32()

	// im2col: one column per output pixel, one row per kernel element.
	colRows := inCh * kH * kW
	colCols := outH * outW
	col := make([]float32, colRows*colCols)

	for n := 0; n < batch; n++ {
		imageToColumns(inData[n*inCh*inH*inW:], col, inCh, inH, inW, kH, kW, outH, outW, stride, padding)

		// [outCh, colRows] x [colRows, colCols] -> [outCh, colCols]
		out := resData[n*outCh*outH*outW:]
		for oc := 0; oc < outCh; oc++ {
			kRow := kData[oc*colRows : (oc+1)*colRows]
			outRow := out[oc*colCols : (oc+1)*colCols]
			for r, kv := range kRow {
				if kv == 0 {
					continue
				}
				colRow := col[r*colCols : (r+1)*colCols]
				for c := range colRow {
					outRow[c] += kv * colRow[c]
				}
			}
		}
	}
	return result
}

// imageToColumns unfolds one CHW image into the column matrix used by the
// lowered convolution. Out-of-bounds taps stay zero.
func imageToColumns(img, col []float32, inCh, inH, inW, kH, kW, outH, outW, stride, padding int) {
	colCols := outH * outW
	for c := 0; c < inCh; c++ {
		for ky := 0; ky < kH; ky++ {
			for kx := 0; kx < kW; kx++ {
				row := (c*kH+ky)*kW + kx
				dst := col[row*colCols : (row+1)*colCols]
				for oy := 0; oy < outH; oy++ {
					iy := oy*stride + ky - padding
					if iy < 0 || iy >= inH {
						for ox := 0; ox < outW; ox++ {
							dst[oy*outW+ox] = 0
						}
						continue
					}
					for ox := 0; ox < outW; ox++ {
						ix := ox*stride + kx - padding
						if ix < 0 || ix >= inW {
							dst[oy*outW+ox] = 0
						} else {
							dst[oy*outW+ox] = img[(c*inH+iy)*inW+ix]
						}
					}
				}
			}
		}
	}
}
