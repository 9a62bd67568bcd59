package train

import (
	"github.com/distill-ml/distill/internal/autodiff"
	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/tensor"
)

// SupervisedStrategy trains against hard labels with plain cross-entropy.
type SupervisedStrategy[B tensor.Backend] struct {
	loss *nn.CrossEntropyLoss[*autodiff.Backend[B]]
}

// NewSupervisedStrategy creates the direct-training strategy.
func NewSupervisedStrategy[B tensor.Backend](backend *autodiff.Backend[B]) *SupervisedStrategy[B] {
	return &SupervisedStrategy[B]{loss: nn.NewCrossEntropyLoss(backend)}
}

// StepLoss ignores the input images; only logits and labels matter.
func (s *SupervisedStrategy[B]) StepLoss(
	_ *tensor.Tensor[float32, *autodiff.Backend[B]],
	logits *tensor.Tensor[float32, *autodiff.Backend[B]],
	labels *tensor.Tensor[int32, *autodiff.Backend[B]],
) *tensor.Tensor[float32, *autodiff.Backend[B]] {
	return s.loss.Forward(logits, labels)
}
