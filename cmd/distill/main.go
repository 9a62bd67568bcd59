// Command distill trains an MNIST digit classifier three ways and compares
// the results: a wide teacher network trained on hard labels, a compact
// student trained the same way, and the same compact student trained by
// knowledge distillation from the teacher.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/distill-ml/distill/internal/autodiff"
	"github.com/distill-ml/distill/internal/backend/cpu"
	"github.com/distill-ml/distill/internal/checkpoint"
	"github.com/distill-ml/distill/internal/mnist"
	"github.com/distill-ml/distill/internal/model"
	"github.com/distill-ml/distill/internal/optim"
	"github.com/distill-ml/distill/internal/train"
)

type backend = *autodiff.Backend[*cpu.Backend]

func main() {
	var (
		dataDir     = flag.String("data", "data", "directory with MNIST IDX files")
		synthetic   = flag.Bool("synthetic", false, "use random synthetic data instead of MNIST files")
		samples     = flag.Int("samples", 0, "cap on training samples (0 = all)")
		epochs      = flag.Int("epochs", 3, "training epochs per model")
		batchSize   = flag.Int("batch", 64, "mini-batch size")
		lr          = flag.Float64("lr", 0.001, "Adam learning rate")
		alpha       = flag.Float64("alpha", 0.3, "hard-loss weight in the distillation blend")
		tau         = flag.Float64("tau", 4.0, "distillation softening temperature")
		seed        = flag.Int64("seed", 42, "random seed")
		ckptDir     = flag.String("checkpoints", "", "directory to write model checkpoints (empty = skip)")
		teacherCkpt = flag.String("teacher-ckpt", "", "teacher checkpoint to reload instead of training the teacher")
		curvesDir   = flag.String("curves", "", "directory to write training curve plots (empty = skip)")
	)
	flag.Parse()

	if err := run(*dataDir, *synthetic, *samples, *epochs, *batchSize,
		float32(*lr), float32(*alpha), float32(*tau), *seed, *ckptDir, *teacherCkpt, *curvesDir); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(dataDir string, synthetic bool, samples, epochs, batchSize int,
	lr, alpha, tau float32, seed int64, ckptDir, teacherCkpt, curvesDir string) error {

	rng := rand.New(rand.NewSource(seed))
	b := autodiff.New(cpu.New())

	trainSet, testSet, err := loadData(dataDir, synthetic, samples, rng)
	if err != nil {
		return err
	}
	fmt.Printf("Dataset: %d train / %d test samples\n", trainSet.Len(), testSet.Len())

	evaluator := train.NewEvaluator[*cpu.Backend](b)
	testLoader := mnist.NewLoader(testSet, batchSize, nil)
	testLoader.KeepTail = true

	// Teacher: wide network on hard labels, or reloaded from an earlier run.
	var teacher *model.Net[backend]
	var teacherHist *train.History
	if teacherCkpt != "" {
		fmt.Println("\n=== Teacher (from checkpoint) ===")
		var meta checkpoint.Meta
		teacher, meta, err = loadTeacher(teacherCkpt, seed, b)
		if err != nil {
			return fmt.Errorf("loading teacher: %w", err)
		}
		fmt.Printf("Parameters: %d (trained %d epochs, accuracy %.2f)\n",
			teacher.NumParameters(), meta.Epoch, meta.Accuracy)
	} else {
		fmt.Println("\n=== Teacher (direct training) ===")
		teacher = newModel(model.TeacherConfig(), seed, b)
		fmt.Printf("Parameters: %d\n", teacher.NumParameters())
		teacherHist, err = trainModel(teacher, trainSet, testLoader, epochs, batchSize, lr, seed, b, nil)
		if err != nil {
			return fmt.Errorf("training teacher: %w", err)
		}
		teacherHist.Label = "teacher"
	}

	// Student A: compact architecture, direct training.
	fmt.Println("\n=== Student (direct training) ===")
	direct := newModel(model.StudentConfig(), seed, b)
	fmt.Printf("Parameters: %d\n", direct.NumParameters())
	directHist, err := trainModel(direct, trainSet, testLoader, epochs, batchSize, lr, seed, b, nil)
	if err != nil {
		return fmt.Errorf("training student: %w", err)
	}
	directHist.Label = "student-direct"

	// Student B: identical initial weights (same seed and width as Student
	// A), distilled from the teacher.
	fmt.Println("\n=== Student (distillation) ===")
	distilled := newModel(model.StudentConfig(), seed, b)
	strategy, err := train.NewDistillStrategy(teacher, alpha, tau, b)
	if err != nil {
		return err
	}
	distilledHist, err := trainModel(distilled, trainSet, testLoader, epochs, batchSize, lr, seed, b, strategy)
	if err != nil {
		return fmt.Errorf("distilling student: %w", err)
	}
	distilledHist.Label = "student-distilled"

	// Final comparison on the held-out test set.
	fmt.Println("\n=== Test set results ===")
	results := []struct {
		name string
		net  *model.Net[backend]
	}{
		{"teacher", teacher},
		{"student-direct", direct},
		{"student-distilled", distilled},
	}
	metas := make(map[string]checkpoint.Meta, len(results))
	for _, r := range results {
		loss, acc, err := evaluator.Evaluate(r.net, testLoader)
		if err != nil {
			return fmt.Errorf("evaluating %s: %w", r.name, err)
		}
		fmt.Printf("%-18s Loss:%.2f\tAccuracy:%.2f\n", r.name, loss, acc)
		metas[r.name] = checkpoint.Meta{
			ModelType: r.name,
			Epoch:     epochs,
			Loss:      float64(loss),
			Accuracy:  float64(acc),
			CreatedAt: time.Now(),
		}
	}

	if ckptDir != "" {
		if err := os.MkdirAll(ckptDir, 0o755); err != nil {
			return err
		}
		for _, r := range results {
			path := filepath.Join(ckptDir, r.name+".dstl")
			if err := checkpoint.Save(path, r.net.StateDict(), metas[r.name]); err != nil {
				return fmt.Errorf("saving %s: %w", path, err)
			}
			fmt.Printf("Saved %s\n", path)
		}
	}

	if curvesDir != "" {
		if err := os.MkdirAll(curvesDir, 0o755); err != nil {
			return err
		}
		histories := []*train.History{directHist, distilledHist}
		if teacherHist != nil {
			histories = append([]*train.History{teacherHist}, histories...)
		}
		if err := train.SaveCurves(curvesDir, histories...); err != nil {
			return err
		}
		fmt.Printf("Saved curves to %s\n", curvesDir)
	}
	return nil
}

// newModel initializes a network from its own freshly seeded rng, so every
// model built with the same seed and config starts from the same weights
// no matter what ran before it.
func newModel(config model.Config, seed int64, b backend) *model.Net[backend] {
	return model.New(config, rand.New(rand.NewSource(seed)), b)
}

// loadTeacher restores a trained teacher from a checkpoint written by an
// earlier run, skipping teacher retraining.
func loadTeacher(path string, seed int64, b backend) (*model.Net[backend], checkpoint.Meta, error) {
	state, meta, err := checkpoint.Load(path)
	if err != nil {
		return nil, meta, err
	}
	net := newModel(model.TeacherConfig(), seed, b)
	if err := net.LoadStateDict(state); err != nil {
		return nil, meta, fmt.Errorf("%s: %w", path, err)
	}
	return net, meta, nil
}

// trainModel runs one training job. A nil strategy means plain supervised
// cross-entropy. The loader gets its own rng so batch order depends only
// on the seed, not on how much randomness earlier jobs consumed; per-epoch
// accuracy is measured against the held-out loader.
func trainModel(net *model.Net[backend], trainSet *mnist.Dataset, heldOut *mnist.Loader,
	epochs, batchSize int, lr float32, seed int64,
	b backend, strategy train.Strategy[*cpu.Backend]) (*train.History, error) {

	loader := mnist.NewLoader(trainSet, batchSize, rand.New(rand.NewSource(seed)))
	opt := optim.NewAdam(net.Parameters(), optim.AdamConfig{LR: lr}, b)

	trainer := train.NewTrainer[*cpu.Backend](net, opt, b)
	trainer.Progress = os.Stdout
	trainer.Validation = heldOut

	if strategy == nil {
		strategy = train.NewSupervisedStrategy[*cpu.Backend](b)
	}
	return trainer.Train(loader, epochs, strategy)
}

func loadData(dataDir string, synthetic bool, samples int, rng *rand.Rand) (*mnist.Dataset, *mnist.Dataset, error) {
	if synthetic {
		n := samples
		if n == 0 {
			n = 2048
		}
		return mnist.Synthetic(n, rng), mnist.Synthetic(n/4, rng), nil
	}

	trainSet, err := mnist.Load(dataDir, "train")
	if err != nil {
		return nil, nil, fmt.Errorf("loading training set: %w", err)
	}
	testSet, err := mnist.Load(dataDir, "test")
	if err != nil {
		return nil, nil, fmt.Errorf("loading test set: %w", err)
	}
	if samples > 0 {
		trainSet = trainSet.Subset(samples)
	}
	return trainSet, testSet, nil
}
