// Package pipeline runs the whole training workflow:
// split the dataset, train, write a report, export the model, and publish it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/dataset"
	"github.com/cyclopcam/trainkit/dataset/split"
	"github.com/cyclopcam/trainkit/pkg/iox"
	"github.com/cyclopcam/trainkit/training/artifact"
	"github.com/cyclopcam/trainkit/training/config"
	"github.com/cyclopcam/trainkit/training/report"
	"github.com/cyclopcam/trainkit/training/rundb"
	"github.com/cyclopcam/trainkit/training/trainer"
)

// Outcome records what happened at every stage of a run.
// Later stages run whenever their inputs exist, even if an earlier stage failed.
type Outcome struct {
	RunID      int64                // Zero if there is no run history
	Split      *split.Result        // Result of splitting the dataset
	Train      *trainer.TrainResult // Whatever the trainer produced, even on failure
	TrainErr   error
	LogDir     string          // Report directory. Empty if no report was made.
	Summary    *report.Summary // Nil if there was no usable results.csv
	ReportErr  error
	ExportPath string // Exported model. Empty if export didn't run or failed.
	ExportErr  error
	Artifacts  []string // Names of published artifacts
}

// Err returns the first error that makes the run a failure.
// Report and publish failures are only warnings.
func (o *Outcome) Err() error {
	if o.TrainErr != nil {
		return o.TrainErr
	}
	return o.ExportErr
}

type Pipeline struct {
	Log       logs.Log
	Config    *config.Config
	Trainer   trainer.Trainer
	Splitter  *split.Splitter
	RunDB     *rundb.RunDB     // Optional
	Artifacts artifact.Storage // Optional
	Now       func() time.Time // Defaults to time.Now
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Preflight checks that the dataset root exists.
// This is fatal, and must pass before anything else happens.
func (p *Pipeline) Preflight() error {
	if !iox.IsDir(p.Config.DatasetRoot) {
		return fmt.Errorf("%w: %v", dataset.ErrMissingRoot, p.Config.DatasetRoot)
	}
	return nil
}

// checkDataYAML verifies that data.yaml exists. Problems with its content are only logged,
// because the file belongs to the trainer, and it has the final say.
func (p *Pipeline) checkDataYAML() (string, error) {
	layout := dataset.Layout{Root: p.Config.DatasetRoot}
	yamlPath := layout.DataYAML()
	dc, err := dataset.LoadDataYAML(yamlPath)
	if errors.Is(err, dataset.ErrMissingDataYAML) {
		return "", err
	} else if err != nil {
		p.Log.Warnf("%v", err)
	} else if err := dc.Validate(p.Config.DatasetRoot); err != nil {
		p.Log.Warnf("data.yaml may be invalid: %v", err)
	}
	p.Log.Infof("Using data config %v", yamlPath)
	return yamlPath, nil
}

// Run executes the pipeline.
// The returned error is non-nil only if the run could not start (eg missing dataset).
// Check Outcome.Err() for the result of the run itself.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	cfg := p.Config
	if err := p.Preflight(); err != nil {
		return nil, err
	}

	out := &Outcome{}
	splitRes, err := p.Splitter.Run(ctx, cfg.DatasetRoot, cfg.AdditionalDatasets)
	if err != nil {
		return nil, fmt.Errorf("Failed to split dataset: %w", err)
	}
	out.Split = splitRes

	yamlPath, err := p.checkDataYAML()
	if err != nil {
		return nil, err
	}

	var run *rundb.Run
	if p.RunDB != nil {
		if run, err = p.RunDB.Begin(cfg.Train.Model, cfg.Epochs, cfg.DatasetRoot); err != nil {
			p.Log.Warnf("Failed to record run start: %v", err)
		} else {
			out.RunID = run.ID
		}
	}

	p.Log.Infof("Training %v for %v epochs on device %v", cfg.Train.Model, cfg.Epochs, cfg.Train.Device)
	out.Train, out.TrainErr = p.Trainer.Train(ctx, trainer.Params{
		Data:   yamlPath,
		Epochs: cfg.Epochs,
		Train:  cfg.Train,
	})
	if out.Train == nil {
		out.Train = &trainer.TrainResult{}
	}
	if out.TrainErr != nil {
		p.Log.Errorf("Training failed: %v", out.TrainErr)
	}

	p.makeReport(out)
	p.export(ctx, out)
	p.publish(ctx, out)

	if run != nil {
		run.SaveDir = out.Train.SaveDir
		run.LogDir = out.LogDir
		run.ExportPath = out.ExportPath
		if len(out.Artifacts) != 0 {
			run.Artifact = out.Artifacts[0]
		}
		if err := p.RunDB.Finish(run, out.Summary, out.Err()); err != nil {
			p.Log.Warnf("Failed to record run outcome: %v", err)
		}
	}
	if out.Err() == nil {
		p.Log.Infof("Training complete. Results are in %v", out.Train.SaveDir)
	}
	return out, nil
}

// reportConfig lists the settings shown in the text report
func (p *Pipeline) reportConfig() []report.ConfigItem {
	cfg := p.Config
	return []report.ConfigItem{
		{Key: "Epochs", Value: cfg.Epochs},
		{Key: "Device", Value: cfg.Train.Device},
		{Key: "Model", Value: cfg.Train.Model},
		{Key: "Batch", Value: cfg.Train.Batch},
		{Key: "Image Size", Value: cfg.Train.ImgSz},
		{Key: "Optimizer", Value: cfg.Train.Optimizer},
		{Key: "Dataset", Value: cfg.DatasetRoot},
	}
}

// The report is made once, from whatever the trainer left behind. Failure here never blocks export.
func (p *Pipeline) makeReport(out *Outcome) {
	if out.Train.SaveDir == "" {
		p.Log.Warnf("Trainer produced no output directory, so there is nothing to report")
		return
	}
	now := p.now()
	logDir, err := report.CreateLogDirectory(p.Config.ReportDir, now)
	if err != nil {
		out.ReportErr = err
		p.Log.Warnf("Report generation failed: %v", err)
		return
	}
	out.LogDir = logDir
	out.Summary, err = report.SaveResults(p.Log, out.Train.SaveDir, logDir, out.Train.BestWeights)
	if err != nil {
		out.ReportErr = err
		p.Log.Warnf("Failed to summarize results: %v", err)
	}
	if err := report.GenerateTextReport(logDir, p.reportConfig(), out.Summary, now); err != nil {
		out.ReportErr = errors.Join(out.ReportErr, err)
		p.Log.Warnf("Failed to write text report: %v", err)
		return
	}
	p.Log.Infof("Report generated at %v", logDir)
}

// Export runs once, and only if best weights exist
func (p *Pipeline) export(ctx context.Context, out *Outcome) {
	if out.Train.BestWeights == "" {
		p.Log.Warnf("No best weights were produced, skipping export")
		return
	}
	p.Log.Infof("Exporting %v to %v", out.Train.BestWeights, p.Config.ExportFormat)
	out.ExportPath, out.ExportErr = p.Trainer.Export(ctx, out.Train.BestWeights, p.Config.ExportFormat)
	if out.ExportErr != nil {
		p.Log.Errorf("Export failed: %v", out.ExportErr)
	}
}

// artifactPrefix names the folder that a run's artifacts are published into
func (p *Pipeline) artifactPrefix(out *Outcome) string {
	if out.LogDir != "" {
		return filepath.Base(out.LogDir)
	}
	return "training_" + p.now().Format("20060102_150405")
}

func (p *Pipeline) publish(ctx context.Context, out *Outcome) {
	if p.Artifacts == nil || out.ExportPath == "" {
		return
	}
	prefix := p.artifactPrefix(out)
	files := []string{out.ExportPath}
	if out.LogDir != "" {
		files = append(files,
			filepath.Join(out.LogDir, report.ReportFile),
			filepath.Join(out.LogDir, report.MetricsDir, report.SummaryFile),
		)
	}
	for _, f := range files {
		if !iox.Exists(f) {
			continue
		}
		name := path.Join(prefix, filepath.Base(f))
		if err := artifact.Publish(ctx, p.Artifacts, name, f); err != nil {
			p.Log.Warnf("%v", err)
			continue
		}
		out.Artifacts = append(out.Artifacts, name)
	}
}

// Evaluate measures a trained model against one split of the dataset
func (p *Pipeline) Evaluate(ctx context.Context, weights string) (*trainer.ValMetrics, error) {
	if err := p.Preflight(); err != nil {
		return nil, err
	}
	yamlPath, err := p.checkDataYAML()
	if err != nil {
		return nil, err
	}
	cfg := p.Config
	p.Log.Infof("Evaluating %v on the %v split", weights, cfg.Val.Split)
	m, err := p.Trainer.Val(ctx, trainer.ValParams{
		Weights: weights,
		Data:    yamlPath,
		Split:   cfg.Val.Split,
		ImgSz:   cfg.Train.ImgSz,
		Batch:   cfg.Train.Batch,
		Device:  cfg.Train.Device,
		Conf:    cfg.Val.Conf,
		Plots:   cfg.Train.Plots,
	})
	if err != nil {
		return nil, err
	}
	p.Log.Infof("mAP50: %.4f", m.MAP50)
	p.Log.Infof("mAP50-95: %.4f", m.MAP50_95)
	return m, nil
}
