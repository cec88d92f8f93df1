package trainer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/pkg/iox"
	"github.com/cyclopcam/trainkit/pkg/shell"
)

// CLITrainer runs the ultralytics 'yolo' command line tool
type CLITrainer struct {
	Log    logs.Log
	Binary string // Defaults to "yolo"
	Dir    string // Working directory. Relative paths in the trainer's output are resolved against this.
}

func NewCLITrainer(log logs.Log, binary string) *CLITrainer {
	if binary == "" {
		binary = "yolo"
	}
	return &CLITrainer{
		Log:    log,
		Binary: binary,
	}
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// TrainArgs builds the command line arguments for a training run
func TrainArgs(p Params) []string {
	t := p.Train
	args := []string{
		"detect", "train",
		"data=" + p.Data,
		"model=" + t.Model,
		"epochs=" + strconv.Itoa(p.Epochs),
		"batch=" + strconv.Itoa(t.Batch),
		"imgsz=" + strconv.Itoa(t.ImgSz),
		"device=" + t.Device,
		"patience=" + strconv.Itoa(t.Patience),
		"save=True",
		"verbose=True",
		"plots=" + formatBool(t.Plots),
	}
	if t.Project != "" {
		args = append(args, "project="+t.Project)
	}
	if t.Name != "" {
		args = append(args, "name="+t.Name)
	}
	if t.Optimizer != "" {
		args = append(args,
			"optimizer="+t.Optimizer,
			"lr0="+formatFloat(t.LR0),
			"lrf="+formatFloat(t.LRF),
			"cos_lr="+formatBool(t.CosLR),
			"warmup_epochs="+formatFloat(t.WarmupEpochs),
		)
	}
	keys := make([]string, 0, len(t.Extra))
	for k := range t.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k+"="+t.Extra[k])
	}
	return args
}

// ValArgs builds the command line arguments for an evaluation run
func ValArgs(p ValParams) []string {
	args := []string{
		"detect", "val",
		"model=" + p.Weights,
		"data=" + p.Data,
		"split=" + p.Split,
		"imgsz=" + strconv.Itoa(p.ImgSz),
		"batch=" + strconv.Itoa(p.Batch),
		"device=" + p.Device,
		"plots=" + formatBool(p.Plots),
		"conf=" + formatFloat(p.Conf),
	}
	return args
}

func (c *CLITrainer) run(ctx context.Context, parser *OutputParser, args []string) error {
	c.Log.Infof("Running %v %v", c.Binary, strings.Join(args, " "))
	_, err := shell.Stream(ctx, shell.StreamOptions{
		Dir: c.Dir,
		OnLine: func(line string) {
			parser.Feed(line)
			c.Log.Infof("%v", StripANSI(line))
		},
		TailSize: 30,
	}, c.Binary, args...)
	return err
}

func (c *CLITrainer) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

func (c *CLITrainer) Train(ctx context.Context, params Params) (*TrainResult, error) {
	parser := &OutputParser{}
	err := c.run(ctx, parser, TrainArgs(params))

	res := &TrainResult{}
	res.SaveDir = c.resolve(parser.SaveDir)
	if res.SaveDir == "" && params.Train.Project != "" && params.Train.Name != "" {
		// The trainer didn't tell us. It may have appended a number to the name, so this is only a guess.
		guess := c.resolve(filepath.Join(params.Train.Project, params.Train.Name))
		if iox.IsDir(guess) {
			c.Log.Warnf("Trainer did not report its save directory, assuming %v", guess)
			res.SaveDir = guess
		}
	}
	if res.SaveDir != "" {
		if best := filepath.Join(res.SaveDir, "weights", "best.pt"); iox.Exists(best) {
			res.BestWeights = best
		}
		if last := filepath.Join(res.SaveDir, "weights", "last.pt"); iox.Exists(last) {
			res.LastWeights = last
		}
	}
	if err != nil {
		return res, fmt.Errorf("Training failed: %w", err)
	}
	if res.SaveDir == "" {
		return res, fmt.Errorf("Training finished, but the save directory could not be determined")
	}
	return res, nil
}

func (c *CLITrainer) Val(ctx context.Context, params ValParams) (*ValMetrics, error) {
	parser := &OutputParser{}
	if err := c.run(ctx, parser, ValArgs(params)); err != nil {
		return nil, fmt.Errorf("Validation failed: %w", err)
	}
	if parser.Metrics == nil {
		return nil, fmt.Errorf("Validation finished, but no metrics were found in the output")
	}
	m := *parser.Metrics
	m.SaveDir = c.resolve(parser.SaveDir)
	return &m, nil
}

// Version checks that the trainer can be launched, and returns its version
func (c *CLITrainer) Version() (string, error) {
	out, err := shell.Run(c.Binary, "version")
	if err != nil {
		return "", fmt.Errorf("Failed to run %v: %w", c.Binary, err)
	}
	return strings.TrimSpace(StripANSI(out)), nil
}

func (c *CLITrainer) Export(ctx context.Context, weights, format string) (string, error) {
	parser := &OutputParser{}
	args := []string{"export", "model=" + weights, "format=" + format}
	if err := c.run(ctx, parser, args); err != nil {
		return "", fmt.Errorf("Export failed: %w", err)
	}
	if parser.ExportPath != "" {
		return c.resolve(parser.ExportPath), nil
	}
	// The exported model is written next to the weights
	guess := strings.TrimSuffix(weights, filepath.Ext(weights)) + "." + format
	if _, err := os.Stat(guess); err == nil {
		return guess, nil
	}
	return "", fmt.Errorf("Export finished, but the exported model could not be found")
}
