package cpu

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"

	"github.com/distill-ml/distill/internal/tensor"
)

// blockSize is the cache-blocking tile edge used by MatMul, derived once
// from the detected L1 data cache: three float32 tiles per block must fit.
var blockSize = detectBlockSize()

func detectBlockSize() int {
	l1 := cpuid.CPU.Cache.L1D
	if l1 <= 0 {
		return 64
	}
	// 3 tiles of size*size float32 values per block.
	size := 8
	for size*size*3*4 <= l1 && size < 256 {
		size *= 2
	}
	return size / 2
}

// MatMul computes the matrix product of two 2D tensors using cache blocking
// over [blockSize x blockSize] tiles.
func (cpu *Backend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	m, k := aShape[0], aShape[1]
	k2, n := bShape[0], bShape[1]
	if k != k2 {
		panic(fmt.Sprintf("matmul: inner dimensions mismatch: %v x %v", aShape, bShape))
	}

	result := mustRaw(tensor.Shape{m, n}, cpu.device)
	aData, bData := a.AsFloat32(), b.AsFloat32()
	resData := result.AsFloat32()

	bs := blockSize
	for i0 := 0; i0 < m; i0 += bs {
		iMax := min(i0+bs, m)
		for k0 := 0; k0 < k; k0 += bs {
			kMax := min(k0+bs, k)
			for j0 := 0; j0 < n; j0 += bs {
				jMax := min(j0+bs, n)
				for i := i0; i < iMax; i++ {
					for kk := k0; kk < kMax; kk++ {
						av := aData[i*k+kk]
						if av == 0 {
							continue
						}
						bRow := bData[kk*n+j0 : kk*n+jMax]
						resRow := resData[i*n+j0 : i*n+jMax]
						for j := range bRow {
							resRow[j] += av * bRow[j]
						}
					}
				}
			}
		}
	}
	return result
}
