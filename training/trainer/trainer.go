// Package trainer drives the external object detection toolkit.
// Training, evaluation and export all happen inside the toolkit. We only prepare
// arguments, watch its output, and find the files that it produces.
package trainer

import (
	"context"

	"github.com/cyclopcam/trainkit/training/config"
)

// Params for a training run
type Params struct {
	Data   string             // Path to data.yaml
	Epochs int                // Number of epochs
	Train  config.TrainConfig // Hyperparameters
}

// TrainResult describes where the trainer left its output.
// After a failed run, whatever could be discovered is still filled in.
type TrainResult struct {
	SaveDir     string // Directory holding results.csv, plots, and weights/. Empty if unknown.
	BestWeights string // Path to best.pt. Empty if it was never written.
	LastWeights string // Path to last.pt. Empty if it was never written.
}

// ValParams for an evaluation run
type ValParams struct {
	Weights string
	Data    string
	Split   string
	ImgSz   int
	Batch   int
	Device  string
	Conf    float64
	Plots   bool
}

// ValMetrics are the headline numbers of an evaluation run
type ValMetrics struct {
	Images    int
	Instances int
	Precision float64
	Recall    float64
	MAP50     float64
	MAP50_95  float64
	SaveDir   string
}

// Trainer is the external training toolkit
type Trainer interface {
	Train(ctx context.Context, params Params) (*TrainResult, error)
	Val(ctx context.Context, params ValParams) (*ValMetrics, error)
	// Export converts weights to format, and returns the path of the exported model
	Export(ctx context.Context, weights, format string) (string, error)
}
