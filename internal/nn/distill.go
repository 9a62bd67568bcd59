package nn

import (
	"fmt"
	"math"

	"github.com/distill-ml/distill/internal/tensor"
)

// DistillationLoss blends hard-target cross-entropy with a soft-target
// divergence against a frozen teacher:
//
//	total = alpha * CE(student, targets) + (1 - alpha) * KL(p ‖ q)
//
// where p = softmax(teacherLogits / tau) and q = softmax(studentLogits / tau).
// The student side of the divergence goes through log-softmax; the teacher
// side is plain probabilities. Teacher logits are treated as constants, so
// no gradient flows into the teacher.
//
// alpha = 1 recovers plain cross-entropy exactly, both in the loss value
// and in the gradients.
type DistillationLoss[B tensor.Backend] struct {
	alpha   float32
	tau     float32
	hard    *CrossEntropyLoss[B]
	backend B
}

// NewDistillationLoss validates the blend weight and temperature.
// alpha must be in [0, 1] and tau strictly positive.
func NewDistillationLoss[B tensor.Backend](alpha, tau float32, backend B) (*DistillationLoss[B], error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("distillation: alpha must be in [0, 1], got %g", alpha)
	}
	if tau <= 0 {
		return nil, fmt.Errorf("distillation: temperature must be > 0, got %g", tau)
	}
	return &DistillationLoss[B]{
		alpha:   alpha,
		tau:     tau,
		hard:    NewCrossEntropyLoss(backend),
		backend: backend,
	}, nil
}

// Alpha returns the hard-loss weight.
func (d *DistillationLoss[B]) Alpha() float32 { return d.alpha }

// Tau returns the softening temperature.
func (d *DistillationLoss[B]) Tau() float32 { return d.tau }

// Forward computes the blended scalar loss. teacherLogits must have the
// same [batch, classes] shape as studentLogits and are never differentiated.
func (d *DistillationLoss[B]) Forward(
	studentLogits *tensor.Tensor[float32, B],
	teacherLogits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	if !studentLogits.Shape().Equal(teacherLogits.Shape()) {
		panic(fmt.Sprintf("distillation: student shape %v != teacher shape %v",
			studentLogits.Shape(), teacherLogits.Shape()))
	}

	hardLoss := d.hard.Forward(studentLogits, targets)
	softLoss := d.softLoss(studentLogits, teacherLogits)

	// The blend runs through tensor ops so both scale factors land on the
	// tape and gradients carry exactly alpha and 1-alpha.
	return hardLoss.MulScalar(d.alpha).Add(softLoss.MulScalar(1 - d.alpha))
}

// softLoss computes KL(p ‖ q) at temperature tau. Teacher probabilities are
// softened outside the tape; only the student logits are differentiated.
func (d *DistillationLoss[B]) softLoss(
	studentLogits *tensor.Tensor[float32, B],
	teacherLogits *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	probs := d.softenTeacher(teacherLogits)

	type softKLBackend interface {
		SoftKLDiv(logits, teacherProbs *tensor.RawTensor, temperature float32) *tensor.RawTensor
	}
	if ad, ok := any(d.backend).(softKLBackend); ok {
		raw := ad.SoftKLDiv(studentLogits.Raw(), probs.Raw(), d.tau)
		return tensor.New[float32, B](raw, d.backend)
	}

	// Non-autodiff fallback: direct evaluation.
	shape := studentLogits.Shape()
	batch, classes := shape[0], shape[1]
	logitsData := studentLogits.Data()
	probsData := probs.Data()

	var total float32
	scaled := make([]float64, classes)
	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		maxVal := row[0] / d.tau
		for i, v := range row {
			scaled[i] = float64(v / d.tau)
			if float32(scaled[i]) > maxVal {
				maxVal = float32(scaled[i])
			}
		}
		var sumExp float64
		for _, v := range scaled {
			sumExp += math.Exp(v - float64(maxVal))
		}
		logSumExp := float64(maxVal) + math.Log(sumExp)
		for i, p := range probsData[b*classes : (b+1)*classes] {
			if p <= 0 {
				continue
			}
			logQ := scaled[i] - logSumExp
			total += p * (float32(math.Log(float64(p))) - float32(logQ))
		}
	}

	loss := tensor.Zeros[float32](tensor.Shape{1}, d.backend)
	loss.Data()[0] = total / float32(batch)
	return loss
}

// softenTeacher computes softmax(teacherLogits / tau) without touching any
// gradient tape.
func (d *DistillationLoss[B]) softenTeacher(teacherLogits *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := teacherLogits.Shape()
	batch, classes := shape[0], shape[1]
	logits := teacherLogits.Data()

	probs := tensor.Zeros[float32](shape, d.backend)
	out := probs.Data()

	for b := 0; b < batch; b++ {
		row := logits[b*classes : (b+1)*classes]
		dst := out[b*classes : (b+1)*classes]

		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float32
		for i, v := range row {
			dst[i] = float32(math.Exp(float64((v - maxVal) / d.tau)))
			sum += dst[i]
		}
		for i := range dst {
			dst[i] /= sum
		}
	}
	return probs
}
