package train

// EpochStats captures the metrics of one training epoch.
type EpochStats struct {
	Epoch    int
	Loss     float32
	Accuracy float32
}

// History accumulates per-epoch metrics over a training run, feeding both
// the final report and the training curve plots.
type History struct {
	Label  string
	Epochs []EpochStats
}

// Append records one epoch.
func (h *History) Append(epoch int, loss, accuracy float32) {
	h.Epochs = append(h.Epochs, EpochStats{Epoch: epoch, Loss: loss, Accuracy: accuracy})
}

// Final returns the last epoch's stats, zero-valued when empty.
func (h *History) Final() EpochStats {
	if len(h.Epochs) == 0 {
		return EpochStats{}
	}
	return h.Epochs[len(h.Epochs)-1]
}
