package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distill-ml/distill/internal/backend/cpu"
	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/tensor"
)

func floats(t *testing.T, data []float32, shape tensor.Shape, b *cpu.Backend) *tensor.Tensor[float32, *cpu.Backend] {
	t.Helper()
	tn, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return tn
}

func labels(t *testing.T, data []int32, b *cpu.Backend) *tensor.Tensor[int32, *cpu.Backend] {
	t.Helper()
	tn, err := tensor.FromSlice(data, tensor.Shape{len(data)}, b)
	require.NoError(t, err)
	return tn
}

func TestLinear_Forward(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(1))
	layer := nn.NewLinear("fc", 3, 2, rng, b)

	// Overwrite the random init with known values.
	w := layer.Parameters()[0].Tensor().Data()
	copy(w, []float32{1, 0, -1, 2, 1, 0}) // [2,3]
	bias := layer.Parameters()[1].Tensor().Data()
	copy(bias, []float32{0.5, -0.5})

	input := floats(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, b)
	out := layer.Forward(input)

	require.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.InDelta(t, 1*1+0*2-1*3+0.5, out.Data()[0], 1e-6)
	assert.InDelta(t, 2*1+1*2+0*3-0.5, out.Data()[1], 1e-6)
}

func TestLinear_RejectsBadShape(t *testing.T) {
	b := cpu.New()
	layer := nn.NewLinear("fc", 4, 2, rand.New(rand.NewSource(1)), b)
	input := floats(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, b)
	assert.Panics(t, func() { layer.Forward(input) })
}

func TestConv2D_OutputShape(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(2))
	conv := nn.NewConv2D("conv", 1, 4, 3, 1, 1, rng, b)

	input := tensor.Zeros[float32](tensor.Shape{2, 1, 8, 8}, b)
	out := conv.Forward(input)

	// Same padding at stride 1 keeps the spatial size.
	assert.Equal(t, tensor.Shape{2, 4, 8, 8}, out.Shape())
	assert.Len(t, conv.Parameters(), 2)
}

func TestMaxPool2D_OutputShape(t *testing.T) {
	b := cpu.New()
	pool := nn.NewMaxPool2D(2, 0, b) // stride 0 defaults to kernel size

	input := tensor.Zeros[float32](tensor.Shape{1, 3, 8, 8}, b)
	out := pool.Forward(input)
	assert.Equal(t, tensor.Shape{1, 3, 4, 4}, out.Shape())
	assert.Nil(t, pool.Parameters())
}

func TestXavier_ScaleShrinksWithFanIn(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(3))

	wide := nn.Xavier(1000, 1000, tensor.Shape{1000, 1000}, rng, b)
	var maxAbs float32
	for _, v := range wide.Data() {
		if a := float32(math.Abs(float64(v))); a > maxAbs {
			maxAbs = a
		}
	}
	limit := float32(math.Sqrt(6.0 / 2000.0))
	assert.LessOrEqual(t, maxAbs, limit)
	assert.Greater(t, maxAbs, float32(0))
}

func TestCrossEntropy_KnownValue(t *testing.T) {
	b := cpu.New()
	loss := nn.NewCrossEntropyLoss(b)

	// Uniform logits over 4 classes: loss is log(4) regardless of target.
	logits := floats(t, []float32{0, 0, 0, 0}, tensor.Shape{1, 4}, b)
	targets := labels(t, []int32{2}, b)

	got := loss.Forward(logits, targets)
	assert.InDelta(t, math.Log(4), float64(got.Data()[0]), 1e-5)
}

func TestCrossEntropy_ConfidentCorrectIsSmall(t *testing.T) {
	b := cpu.New()
	loss := nn.NewCrossEntropyLoss(b)

	confident := floats(t, []float32{10, 0, 0}, tensor.Shape{1, 3}, b)
	wrong := floats(t, []float32{0, 10, 0}, tensor.Shape{1, 3}, b)
	targets := labels(t, []int32{0}, b)

	lo := loss.Forward(confident, targets).Data()[0]
	hi := loss.Forward(wrong, targets).Data()[0]
	assert.Less(t, lo, float32(0.01))
	assert.Greater(t, hi, float32(5))
}

func TestAccuracy(t *testing.T) {
	b := cpu.New()
	logits := floats(t, []float32{
		1, 3, 2, // argmax 1, correct
		5, 0, 0, // argmax 0, correct
		0, 0, 9, // argmax 2, wrong
		2, 1, 0, // argmax 0, wrong
	}, tensor.Shape{4, 3}, b)
	targets := labels(t, []int32{1, 0, 0, 1}, b)

	assert.InDelta(t, 0.5, nn.Accuracy(logits, targets), 1e-6)
}

func TestDistillationLoss_Validation(t *testing.T) {
	b := cpu.New()

	_, err := nn.NewDistillationLoss(-0.1, 4, b)
	assert.Error(t, err)
	_, err = nn.NewDistillationLoss(1.1, 4, b)
	assert.Error(t, err)
	_, err = nn.NewDistillationLoss(0.5, 0, b)
	assert.Error(t, err)
	_, err = nn.NewDistillationLoss(0.5, -1, b)
	assert.Error(t, err)

	d, err := nn.NewDistillationLoss(0.3, 4, b)
	require.NoError(t, err)
	assert.Equal(t, float32(0.3), d.Alpha())
	assert.Equal(t, float32(4), d.Tau())
}

func TestDistillationLoss_AlphaOneEqualsCrossEntropy(t *testing.T) {
	b := cpu.New()

	student := floats(t, []float32{2, 0.5, -1, 0.1, 3, 0.2}, tensor.Shape{2, 3}, b)
	teacher := floats(t, []float32{1, 1, 1, 0, 0, 5}, tensor.Shape{2, 3}, b)
	targets := labels(t, []int32{0, 1}, b)

	ce := nn.NewCrossEntropyLoss(b).Forward(student, targets).Data()[0]

	d, err := nn.NewDistillationLoss(1, 4, b)
	require.NoError(t, err)
	blended := d.Forward(student, teacher, targets).Data()[0]

	// With alpha = 1 the soft term is scaled by exactly zero.
	assert.Equal(t, ce, blended)
}

func TestDistillationLoss_AlphaZeroIsPureSoftLoss(t *testing.T) {
	b := cpu.New()

	// Student matching the teacher exactly gives zero divergence, so at
	// alpha = 0 the total loss is zero even with wrong hard targets.
	logits := []float32{1, 2, 3}
	student := floats(t, logits, tensor.Shape{1, 3}, b)
	teacher := floats(t, logits, tensor.Shape{1, 3}, b)
	targets := labels(t, []int32{0}, b)

	d, err := nn.NewDistillationLoss(0, 2, b)
	require.NoError(t, err)
	got := d.Forward(student, teacher, targets).Data()[0]
	assert.InDelta(t, 0, float64(got), 1e-6)
}

func TestDistillationLoss_BlendIsConvex(t *testing.T) {
	b := cpu.New()

	student := floats(t, []float32{2, -1, 0.5}, tensor.Shape{1, 3}, b)
	teacher := floats(t, []float32{-1, 3, 0}, tensor.Shape{1, 3}, b)
	targets := labels(t, []int32{0}, b)

	lossAt := func(alpha float32) float32 {
		d, err := nn.NewDistillationLoss(alpha, 4, b)
		require.NoError(t, err)
		return d.Forward(student, teacher, targets).Data()[0]
	}

	hard := lossAt(1)
	soft := lossAt(0)
	mid := lossAt(0.5)
	assert.InDelta(t, 0.5*hard+0.5*soft, mid, 1e-5)
}

func TestDistillationLoss_ShapeMismatchPanics(t *testing.T) {
	b := cpu.New()
	d, err := nn.NewDistillationLoss(0.5, 4, b)
	require.NoError(t, err)

	student := floats(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, b)
	teacher := floats(t, []float32{1, 2}, tensor.Shape{1, 2}, b)
	targets := labels(t, []int32{0}, b)

	assert.Panics(t, func() { d.Forward(student, teacher, targets) })
}
