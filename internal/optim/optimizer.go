// Package optim implements the optimization algorithms used for training:
// SGD with momentum and Adam. Design follows torch.optim adapted for Go
// generics.
package optim

import (
	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/tensor"
)

// Optimizer updates model parameters in place from a gradient map produced
// by a tape backward pass.
type Optimizer interface {
	// Step applies one update using the gradients keyed by raw parameter
	// tensors. Parameters absent from the map are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients before the next iteration.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// getGradient looks up the gradient for a parameter, nil when the parameter
// took no part in the recorded computation.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
