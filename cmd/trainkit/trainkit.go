package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/dataset"
	"github.com/cyclopcam/trainkit/dataset/split"
	"github.com/cyclopcam/trainkit/training/artifact"
	"github.com/cyclopcam/trainkit/training/config"
	"github.com/cyclopcam/trainkit/training/dashboard"
	"github.com/cyclopcam/trainkit/training/pipeline"
	"github.com/cyclopcam/trainkit/training/rundb"
	"github.com/cyclopcam/trainkit/training/trainer"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("trainkit", "Train, evaluate and export a YOLO detection model")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file. Defaults are used if omitted.", Default: ""})
	datasetRoot := parser.String("d", "dataset", &argparse.Options{Help: "Dataset root (overrides the config file)", Default: ""})

	trainCmd := parser.NewCommand("train", "Split the dataset, train, write a report, and export the best model")
	epochs := trainCmd.Int("e", "epochs", &argparse.Options{Help: "Number of epochs (overrides the config file)", Default: 0})

	splitCmd := parser.NewCommand("split", "Partition images into train/val/test (70/15/15)")
	extras := splitCmd.StringList("x", "extra", &argparse.Options{Help: "Additional dataset whose images are copied in (may be repeated)"})
	seed := splitCmd.Int("", "seed", &argparse.Options{Help: "Random seed. 0 means random.", Default: 0})
	workers := splitCmd.Int("j", "workers", &argparse.Options{Help: "Concurrent file transfers (1 = sequential)", Default: 1})

	valCmd := parser.NewCommand("val", "Evaluate a trained model")
	valWeights := valCmd.String("w", "weights", &argparse.Options{Help: "Model weights", Required: true})

	exportCmd := parser.NewCommand("export", "Export trained weights (eg to ONNX)")
	exportWeights := exportCmd.String("w", "weights", &argparse.Options{Help: "Model weights", Required: true})
	exportFormat := exportCmd.String("f", "format", &argparse.Options{Help: "Export format (overrides the config file)", Default: ""})

	yamlCmd := parser.NewCommand("init-yaml", "Write data.yaml for the dataset, using the configured class names")
	overwrite := yamlCmd.Flag("", "overwrite", &argparse.Options{Help: "Replace an existing data.yaml", Default: false})

	serveCmd := parser.NewCommand("serve", "Serve the history of training runs over HTTP")
	port := serveCmd.Int("p", "port", &argparse.Options{Help: "HTTP port (overrides the config file)", Default: 0})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *datasetRoot != "" {
		cfg.DatasetRoot = *datasetRoot
	}
	if *epochs != 0 {
		cfg.Epochs = *epochs
	}
	validate := cfg.Validate
	if trainCmd.Happened() || splitCmd.Happened() || valCmd.Happened() || yamlCmd.Happened() {
		validate = cfg.ValidateDataset
	}
	if err := validate(); err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	// Cancelling the context kills the trainer subprocess
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var exitCode int
	switch {
	case trainCmd.Happened():
		exitCode = runTrain(ctx, logger, cfg)
	case splitCmd.Happened():
		opt := split.Options{
			Workers:  *workers,
			Progress: os.Stderr,
		}
		if *seed != 0 {
			opt.Rand = rand.New(rand.NewSource(int64(*seed)))
		}
		res, err := split.NewSplitter(logger, opt).Run(ctx, cfg.DatasetRoot, append(cfg.AdditionalDatasets, *extras...))
		if err != nil {
			logger.Errorf("%v", err)
			exitCode = 1
		} else {
			for _, s := range dataset.Splits {
				c := res.Splits[s]
				logger.Infof("%-5v: %v images, %v labels, %v skipped, %v failed", s, c.Images, c.Labels, c.Skipped, c.Failed)
			}
			if res.Total().Failed != 0 {
				exitCode = 1
			}
		}
	case valCmd.Happened():
		p := newPipeline(logger, cfg, trainer.NewCLITrainer(logger, cfg.TrainerBinary), nil, nil)
		if _, err := p.Evaluate(ctx, *valWeights); err != nil {
			logger.Errorf("Evaluation failed: %v", err)
			exitCode = 1
		}
	case exportCmd.Happened():
		format := cfg.ExportFormat
		if *exportFormat != "" {
			format = *exportFormat
		}
		out, err := trainer.NewCLITrainer(logger, cfg.TrainerBinary).Export(ctx, *exportWeights, format)
		if err != nil {
			logger.Errorf("Export failed: %v", err)
			exitCode = 1
		} else {
			logger.Infof("Exported to %v", out)
		}
	case yamlCmd.Happened():
		layout := dataset.Layout{Root: cfg.DatasetRoot}
		check(layout.MakeSplitDirs())
		if err := dataset.WriteDataYAML(layout.DataYAML(), dataset.NewDataConfig(cfg.DatasetRoot, cfg.Classes()), *overwrite); err != nil {
			logger.Errorf("%v", err)
			exitCode = 1
		} else {
			logger.Infof("Wrote %v", layout.DataYAML())
		}
	case serveCmd.Happened():
		if *port != 0 {
			cfg.Dashboard.Port = *port
		}
		exitCode = runServe(ctx, logger, cfg)
	default:
		fmt.Print(parser.Usage(nil))
		exitCode = 1
	}
	stop()
	logger.Close()
	os.Exit(exitCode)
}

func newPipeline(logger logs.Log, cfg *config.Config, tr trainer.Trainer, db *rundb.RunDB, store artifact.Storage) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Log:       logger,
		Config:    cfg,
		Trainer:   tr,
		Splitter:  split.NewSplitter(logger, split.Options{Progress: os.Stderr}),
		RunDB:     db,
		Artifacts: store,
	}
}

func runTrain(ctx context.Context, logger logs.Log, cfg *config.Config) int {
	var db *rundb.RunDB
	if cfg.RunDB != "" {
		var err error
		if db, err = rundb.Open(logger, cfg.RunDB); err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		defer db.Close()
	}
	store, err := artifact.Open(ctx, logger, cfg.Artifacts)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}

	tr := trainer.NewCLITrainer(logger, cfg.TrainerBinary)
	v, err := tr.Version()
	if err != nil {
		logger.Errorf("The trainer is not available: %v", err)
		return 1
	}
	logger.Infof("Trainer version %v", v)

	out, err := newPipeline(logger, cfg, tr, db, store).Run(ctx)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	if out.Err() != nil {
		logger.Errorf("Training run failed: %v", out.Err())
		return 1
	}
	if out.ExportPath != "" {
		logger.Infof("Exported model: %v", out.ExportPath)
	}
	return 0
}

func runServe(ctx context.Context, logger logs.Log, cfg *config.Config) int {
	if cfg.RunDB == "" {
		logger.Errorf("run_db must be configured to serve the dashboard")
		return 1
	}
	db, err := rundb.Open(logger, cfg.RunDB)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	defer db.Close()
	store, err := artifact.Open(ctx, logger, cfg.Artifacts)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}

	srv := dashboard.NewServer(logger, db, store, cfg.Dashboard)
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	err = srv.ListenHTTP(fmt.Sprintf(":%v", cfg.Dashboard.Port))
	logger.Infof("ListenHTTP returned: %v", err)
	return 0
}
