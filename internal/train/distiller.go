package train

import (
	"github.com/distill-ml/distill/internal/autodiff"
	"github.com/distill-ml/distill/internal/model"
	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/tensor"
)

// DistillStrategy trains a student against a frozen teacher. Each step
// runs the teacher forward with tape recording disabled, so teacher
// parameters never enter the gradient map and stay bit-identical for the
// whole run.
type DistillStrategy[B tensor.Backend] struct {
	teacher *model.Net[*autodiff.Backend[B]]
	loss    *nn.DistillationLoss[*autodiff.Backend[B]]
	backend *autodiff.Backend[B]
}

// NewDistillStrategy wires a trained teacher into a distillation loss.
// alpha weights the hard cross-entropy term, tau is the softening
// temperature; both are validated by the loss constructor.
func NewDistillStrategy[B tensor.Backend](
	teacher *model.Net[*autodiff.Backend[B]],
	alpha, tau float32,
	backend *autodiff.Backend[B],
) (*DistillStrategy[B], error) {
	loss, err := nn.NewDistillationLoss(alpha, tau, backend)
	if err != nil {
		return nil, err
	}
	return &DistillStrategy[B]{teacher: teacher, loss: loss, backend: backend}, nil
}

// StepLoss computes the blended hard/soft loss for one batch.
func (d *DistillStrategy[B]) StepLoss(
	images *tensor.Tensor[float32, *autodiff.Backend[B]],
	logits *tensor.Tensor[float32, *autodiff.Backend[B]],
	labels *tensor.Tensor[int32, *autodiff.Backend[B]],
) *tensor.Tensor[float32, *autodiff.Backend[B]] {
	teacherLogits := d.teacherForward(images)
	return d.loss.Forward(logits, teacherLogits, labels)
}

// teacherForward runs the frozen teacher off the tape.
func (d *DistillStrategy[B]) teacherForward(
	images *tensor.Tensor[float32, *autodiff.Backend[B]],
) *tensor.Tensor[float32, *autodiff.Backend[B]] {
	tape := d.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	// Detach so the teacher's use of the batch cannot alias gradients of
	// the student's use of the same tensor.
	return d.teacher.Forward(images.Detach())
}
