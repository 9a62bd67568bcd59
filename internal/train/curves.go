package train

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SaveCurves renders training loss and accuracy curves for one or more
// runs into loss.svg and accuracy.svg under dir. Each history's Label
// becomes its legend entry.
func SaveCurves(dir string, histories ...*History) error {
	if err := saveCurve(filepath.Join(dir, "loss.svg"), "Training loss", "loss",
		func(s EpochStats) float64 { return float64(s.Loss) }, histories); err != nil {
		return err
	}
	return saveCurve(filepath.Join(dir, "accuracy.svg"), "Training accuracy", "accuracy",
		func(s EpochStats) float64 { return float64(s.Accuracy) }, histories)
}

func saveCurve(path, title, yLabel string, value func(EpochStats) float64, histories []*History) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, h := range histories {
		pts := make(plotter.XYs, len(h.Epochs))
		for j, s := range h.Epochs {
			pts[j].X = float64(s.Epoch)
			pts[j].Y = value(s)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("curves: %w", err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(h.Label, line)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("curves: saving %s: %w", path, err)
	}
	return nil
}
