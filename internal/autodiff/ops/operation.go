// Package ops implements the differentiable operations recorded on the
// gradient tape. Each op captures its inputs and output during the forward
// pass and produces input gradients during the backward pass.
package ops

import "github.com/distill-ml/distill/internal/tensor"

// Operation is one node of the recorded computation graph.
type Operation interface {
	// Backward computes input gradients given the output gradient. The
	// returned slice is parallel to Inputs().
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the tensors gradients flow back to.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor produced by the forward pass.
	Output() *tensor.RawTensor
}
