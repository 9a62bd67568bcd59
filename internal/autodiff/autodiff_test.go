package autodiff_test

import (
	"math"
	"testing"

	"github.com/distill-ml/distill/internal/autodiff"
	"github.com/distill-ml/distill/internal/backend/cpu"
	"github.com/distill-ml/distill/internal/tensor"
)

type adBackend = *autodiff.Backend[*cpu.Backend]

func newBackend() adBackend {
	return autodiff.New(cpu.New())
}

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, b adBackend) *tensor.Tensor[float32, adBackend] {
	t.Helper()
	tn, err := tensor.FromSlice(data, shape, b)
	if err != nil {
		t.Fatal(err)
	}
	return tn
}

func onesGrad(b adBackend) *tensor.RawTensor {
	grad, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, b.Device())
	if err != nil {
		panic(err)
	}
	grad.AsFloat32()[0] = 1
	return grad
}

func TestBackend_Name(t *testing.T) {
	if got := newBackend().Name(); got != "Autodiff(CPU)" {
		t.Errorf("Name() = %s", got)
	}
}

func TestTape_RecordingControl(t *testing.T) {
	b := newBackend()
	tape := b.Tape()

	if tape.IsRecording() {
		t.Error("tape should start idle")
	}

	tape.StartRecording()
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2}, b)
	y := fromSlice(t, []float32{3, 4}, tensor.Shape{2}, b)
	b.Add(x.Raw(), y.Raw())
	if tape.NumOps() != 1 {
		t.Fatalf("NumOps = %d, want 1", tape.NumOps())
	}

	tape.StopRecording()
	b.Add(x.Raw(), y.Raw())
	if tape.NumOps() != 1 {
		t.Error("ops must not be recorded while stopped")
	}

	tape.Clear()
	if tape.NumOps() != 0 {
		t.Error("Clear should drop all ops")
	}
}

func TestBackward_MulGradient(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	// y = x * x at x=3: dy/dx = 2x = 6.
	x := fromSlice(t, []float32{3}, tensor.Shape{1}, b)
	y := x.Mul(x)

	grads := b.Tape().Backward(onesGrad(b), b)
	grad, ok := grads[x.Raw()]
	if !ok {
		t.Fatal("no gradient for x")
	}
	if got := grad.AsFloat32()[0]; got != 6 {
		t.Errorf("d(x*x)/dx = %f, want 6", got)
	}
	_ = y
}

func TestBackward_ChainWithScale(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	// z = 3*(x + y): dz/dx = dz/dy = 3.
	x := fromSlice(t, []float32{1}, tensor.Shape{1}, b)
	y := fromSlice(t, []float32{2}, tensor.Shape{1}, b)
	z := x.Add(y).MulScalar(3)

	if got := z.Data()[0]; got != 9 {
		t.Fatalf("forward = %f, want 9", got)
	}

	grads := b.Tape().Backward(onesGrad(b), b)
	if got := grads[x.Raw()].AsFloat32()[0]; got != 3 {
		t.Errorf("dz/dx = %f, want 3", got)
	}
	if got := grads[y.Raw()].AsFloat32()[0]; got != 3 {
		t.Errorf("dz/dy = %f, want 3", got)
	}
}

func TestBackward_MatMulGradients(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	a := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}, b)
	x := fromSlice(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2}, b)
	_ = a.MatMul(x)

	grad, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, b.Device())
	if err != nil {
		t.Fatal(err)
	}
	for i := range grad.AsFloat32() {
		grad.AsFloat32()[i] = 1
	}

	grads := b.Tape().Backward(grad, b)

	// dL/dA = grad @ Xᵀ with grad of ones: row sums of X.
	gradA := grads[a.Raw()].AsFloat32()
	wantA := []float32{11, 15, 11, 15}
	for i := range wantA {
		if gradA[i] != wantA[i] {
			t.Fatalf("gradA = %v, want %v", gradA, wantA)
		}
	}

	// dL/dX = Aᵀ @ grad: column sums of A.
	gradX := grads[x.Raw()].AsFloat32()
	wantX := []float32{4, 4, 6, 6}
	for i := range wantX {
		if gradX[i] != wantX[i] {
			t.Fatalf("gradX = %v, want %v", gradX, wantX)
		}
	}
}

func TestBackward_BroadcastReduces(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	// Bias [1,3] broadcast over [2,3]: its gradient is summed over rows.
	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, b)
	bias := fromSlice(t, []float32{1, 1, 1}, tensor.Shape{1, 3}, b)
	_ = x.Add(bias)

	grad, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, b.Device())
	for i := range grad.AsFloat32() {
		grad.AsFloat32()[i] = 1
	}
	grads := b.Tape().Backward(grad, b)

	gradBias := grads[bias.Raw()]
	if !gradBias.Shape().Equal(tensor.Shape{1, 3}) {
		t.Fatalf("bias grad shape = %v", gradBias.Shape())
	}
	for i, v := range gradBias.AsFloat32() {
		if v != 2 {
			t.Errorf("bias grad[%d] = %f, want 2", i, v)
		}
	}
}

func TestBackward_GradientAccumulation(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	// z = x + x: dz/dx accumulates to 2.
	x := fromSlice(t, []float32{5}, tensor.Shape{1}, b)
	_ = x.Add(x)

	grads := b.Tape().Backward(onesGrad(b), b)
	if got := grads[x.Raw()].AsFloat32()[0]; got != 2 {
		t.Errorf("d(x+x)/dx = %f, want 2", got)
	}
}

func TestBackward_ReLUMasksGradient(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	x := fromSlice(t, []float32{-2, 3}, tensor.Shape{2}, b)
	out := b.ReLU(x.Raw())
	_ = out

	grad, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, b.Device())
	grad.AsFloat32()[0] = 1
	grad.AsFloat32()[1] = 1
	grads := b.Tape().Backward(grad, b)

	got := grads[x.Raw()].AsFloat32()
	if got[0] != 0 || got[1] != 1 {
		t.Errorf("ReLU grad = %v, want [0 1]", got)
	}
}

func TestCrossEntropy_GradientMatchesFormula(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	logits := fromSlice(t, []float32{2, 1, 0.1}, tensor.Shape{1, 3}, b)
	targets, err := tensor.FromSlice([]int32{0}, tensor.Shape{1}, b)
	if err != nil {
		t.Fatal(err)
	}

	loss := b.CrossEntropy(logits.Raw(), targets.Raw())
	if loss.AsFloat32()[0] <= 0 {
		t.Fatalf("loss = %f, want > 0", loss.AsFloat32()[0])
	}

	grads := b.Tape().Backward(onesGrad(b), b)
	grad := grads[logits.Raw()].AsFloat32()

	// Gradient is softmax - onehot: sums to zero, negative only at the
	// target class.
	var sum float64
	for _, v := range grad {
		sum += float64(v)
	}
	if math.Abs(sum) > 1e-6 {
		t.Errorf("gradient sum = %g, want 0", sum)
	}
	if grad[0] >= 0 {
		t.Errorf("target grad = %f, want < 0", grad[0])
	}
	if grad[1] <= 0 || grad[2] <= 0 {
		t.Errorf("non-target grads = %v, want > 0", grad[1:])
	}
}

func TestCrossEntropy_NumericalGradient(t *testing.T) {
	b := newBackend()

	logitsData := []float32{0.5, -0.2, 1.3, 0.7}
	targetsData := []int32{2, 0}

	lossAt := func(data []float32) float32 {
		bb := newBackend()
		logits := fromSlice(t, data, tensor.Shape{2, 2}, bb)
		targets, err := tensor.FromSlice(targetsData, tensor.Shape{2}, bb)
		if err != nil {
			t.Fatal(err)
		}
		loss := bb.CrossEntropy(logits.Raw(), targets.Raw())
		return loss.AsFloat32()[0]
	}

	b.Tape().StartRecording()
	logits := fromSlice(t, logitsData, tensor.Shape{2, 2}, b)
	targets, err := tensor.FromSlice(targetsData, tensor.Shape{2}, b)
	if err != nil {
		t.Fatal(err)
	}
	b.CrossEntropy(logits.Raw(), targets.Raw())
	grads := b.Tape().Backward(onesGrad(b), b)
	analytic := grads[logits.Raw()].AsFloat32()

	const eps = 1e-2
	for i := range logitsData {
		plus := append([]float32(nil), logitsData...)
		minus := append([]float32(nil), logitsData...)
		plus[i] += eps
		minus[i] -= eps
		numeric := (lossAt(plus) - lossAt(minus)) / (2 * eps)
		if math.Abs(float64(numeric-analytic[i])) > 1e-2 {
			t.Errorf("grad[%d]: numeric %f vs analytic %f", i, numeric, analytic[i])
		}
	}
}

func TestSoftKLDiv_ZeroAtMatchingDistributions(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	// Teacher probs exactly softmax(logits/tau) make the divergence zero
	// and the gradient vanish.
	const tau = 2.0
	logits := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, b)

	probs := tensor.Zeros[float32](tensor.Shape{1, 3}, b)
	var sum float64
	for i, v := range []float32{1, 2, 3} {
		probs.Data()[i] = float32(math.Exp(float64(v) / tau))
		sum += float64(probs.Data()[i])
	}
	for i := range probs.Data() {
		probs.Data()[i] /= float32(sum)
	}

	loss := b.SoftKLDiv(logits.Raw(), probs.Raw(), tau)
	if got := loss.AsFloat32()[0]; math.Abs(float64(got)) > 1e-5 {
		t.Errorf("KL at matching distributions = %g, want 0", got)
	}

	grads := b.Tape().Backward(onesGrad(b), b)
	for i, v := range grads[logits.Raw()].AsFloat32() {
		if math.Abs(float64(v)) > 1e-5 {
			t.Errorf("grad[%d] = %g, want 0", i, v)
		}
	}
}

func TestSoftKLDiv_NumericalGradient(t *testing.T) {
	logitsData := []float32{0.3, -1.1, 0.8}
	probsData := []float32{0.2, 0.5, 0.3}
	const tau = 3.0

	lossAt := func(data []float32) float32 {
		bb := newBackend()
		logits := fromSlice(t, data, tensor.Shape{1, 3}, bb)
		probs := fromSlice(t, probsData, tensor.Shape{1, 3}, bb)
		return bb.SoftKLDiv(logits.Raw(), probs.Raw(), tau).AsFloat32()[0]
	}

	b := newBackend()
	b.Tape().StartRecording()
	logits := fromSlice(t, logitsData, tensor.Shape{1, 3}, b)
	probs := fromSlice(t, probsData, tensor.Shape{1, 3}, b)
	b.SoftKLDiv(logits.Raw(), probs.Raw(), tau)
	grads := b.Tape().Backward(onesGrad(b), b)
	analytic := grads[logits.Raw()].AsFloat32()

	const eps = 1e-2
	for i := range logitsData {
		plus := append([]float32(nil), logitsData...)
		minus := append([]float32(nil), logitsData...)
		plus[i] += eps
		minus[i] -= eps
		numeric := (lossAt(plus) - lossAt(minus)) / (2 * eps)
		if math.Abs(float64(numeric-analytic[i])) > 1e-2 {
			t.Errorf("grad[%d]: numeric %f vs analytic %f", i, numeric, analytic[i])
		}
	}
}

func TestBackward_NoGradientIntoConstants(t *testing.T) {
	b := newBackend()
	b.Tape().StartRecording()

	logits := fromSlice(t, []float32{1, 0}, tensor.Shape{1, 2}, b)
	targets, err := tensor.FromSlice([]int32{1}, tensor.Shape{1}, b)
	if err != nil {
		t.Fatal(err)
	}
	b.CrossEntropy(logits.Raw(), targets.Raw())

	grads := b.Tape().Backward(onesGrad(b), b)
	if _, ok := grads[targets.Raw()]; ok {
		t.Error("targets must not receive a gradient")
	}
}
