package ops

import (
	"fmt"

	"github.com/distill-ml/distill/internal/tensor"
)

// SoftKLDivOp is the fused soft-target divergence used for distillation.
//
// Forward, per sample with temperature T:
//
//	p = softmax(teacherLogits / T)   (precomputed, passed in as probs)
//	q = softmax(studentLogits / T)
//	loss = mean over batch of Σ_i p_i * (log p_i - log q_i)
//
// The teacher probabilities are a constant input, like cross-entropy
// targets; no gradient flows to them.
//
// Backward with respect to the student logits:
//
//	dL/dz_i = (q_i - p_i) / (T * batch)
type SoftKLDivOp struct {
	logits      *tensor.RawTensor // student logits [batch, classes]
	probs       *tensor.RawTensor // teacher softened probabilities [batch, classes]
	temperature float32
	output      *tensor.RawTensor // scalar loss
}

func NewSoftKLDivOp(logits, probs *tensor.RawTensor, temperature float32, output *tensor.RawTensor) *SoftKLDivOp {
	return &SoftKLDivOp{logits: logits, probs: probs, temperature: temperature, output: output}
}

func (op *SoftKLDivOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.logits} }
func (op *SoftKLDivOp) Output() *tensor.RawTensor   { return op.output }

func (op *SoftKLDivOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	batch, classes := shape[0], shape[1]

	grad := newGrad(shape, op.logits)
	logits := op.logits.AsFloat32()
	probs := op.probs.AsFloat32()
	out := grad.AsFloat32()
	gradScale := outputGrad.AsFloat32()[0]
	scale := gradScale / (op.temperature * float32(batch))

	scaled := make([]float32, classes)
	for b := 0; b < batch; b++ {
		row := logits[b*classes : (b+1)*classes]
		for i, v := range row {
			scaled[i] = v / op.temperature
		}
		q := softmaxRow(scaled)
		for i := range q {
			out[b*classes+i] = scale * (q[i] - probs[b*classes+i])
		}
	}
	return []*tensor.RawTensor{grad}
}

// SoftKLDivForward computes the mean KL divergence between softened teacher
// probabilities and the softened student distribution. The student side
// goes through log-softmax directly for numerical stability; the teacher
// side arrives as probabilities.
func SoftKLDivForward(logits, probs *tensor.RawTensor, temperature float32, device tensor.Device) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("soft kl: logits must be [batch, classes], got %v", shape))
	}
	if !probs.Shape().Equal(shape) {
		panic(fmt.Sprintf("soft kl: probs shape %v does not match logits %v", probs.Shape(), shape))
	}
	batch, classes := shape[0], shape[1]

	output, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, device)
	if err != nil {
		panic(err)
	}

	logitsData := logits.AsFloat32()
	probsData := probs.AsFloat32()

	var total float32
	scaled := make([]float32, classes)
	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		for i, v := range row {
			scaled[i] = v / temperature
		}
		logQ := logSoftmaxRow(scaled)
		for i, p := range probsData[b*classes : (b+1)*classes] {
			if p <= 0 {
				continue // 0*log(0) = 0 by convention
			}
			total += p * (log32(p) - logQ[i])
		}
	}
	output.AsFloat32()[0] = total / float32(batch)
	return output
}
