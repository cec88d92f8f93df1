package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cyclopcam/trainkit/dataset/labels"
	"github.com/cyclopcam/trainkit/pkg/yolo"
)

// Environment variables that override the config file
const (
	EnvDatasetRoot = "TRAINKIT_DATASET_ROOT"
	EnvEpochs      = "TRAINKIT_EPOCHS"
	EnvDevice      = "TRAINKIT_DEVICE"
)

// TrainConfig holds the hyperparameters that are passed through to the trainer
type TrainConfig struct {
	Model        string            `json:"model"`         // Starting weights, eg yolov8n.pt, or best.pt of a previous run
	Batch        int               `json:"batch"`         // Batch size
	ImgSz        int               `json:"imgsz"`         // Training image size
	Device       string            `json:"device"`        // "0" for the first GPU, "cpu" for CPU
	Patience     int               `json:"patience"`      // Epochs without improvement before stopping early
	Optimizer    string            `json:"optimizer"`     // eg AdamW. Empty lets the trainer choose.
	LR0          float64           `json:"lr0"`           // Initial learning rate
	LRF          float64           `json:"lrf"`           // Final learning rate, as a fraction of lr0
	CosLR        bool              `json:"cos_lr"`        // Cosine learning rate schedule
	WarmupEpochs float64           `json:"warmup_epochs"` // Warmup epochs
	Project      string            `json:"project"`       // Parent directory of training runs
	Name         string            `json:"name"`          // Name of the training run inside Project
	Plots        bool              `json:"plots"`         // Produce plots
	Extra        map[string]string `json:"extra"`         // Any other trainer arguments
}

// ValConfig controls evaluation of a trained model
type ValConfig struct {
	Split string  `json:"split"` // Dataset split to evaluate
	Conf  float64 `json:"conf"`  // Confidence threshold
}

// One of the storage options may be configured (i.e. either 'filesystem' or 'gcs').
// If neither is configured, artifacts are not published.
type ArtifactsConfig struct {
	Filesystem *ArtifactsConfigFS  `json:"filesystem"`
	GCS        *ArtifactsConfigGCS `json:"gcs"`
}

type ArtifactsConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type ArtifactsConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Prefix string `json:"prefix"` // Prefix for all object names
}

type DashboardConfig struct {
	Port      int `json:"port"`       // HTTP port
	RateLimit int `json:"rate_limit"` // Requests per minute per IP
}

type Config struct {
	DatasetRoot        string          `json:"dataset_root"`        // Root of the dataset (holds data.yaml, images/, labels/)
	AdditionalDatasets []string        `json:"additional_datasets"` // Datasets whose images are copied into DatasetRoot before training
	Epochs             int             `json:"epochs"`              // Number of training epochs
	ClassMapping       map[string]int  `json:"class_mapping"`       // Old class ID -> new class ID, for the label remapper
	ClassNames         []string        `json:"class_names"`         // Class names. Empty means the default lettuce classes.
	Train              TrainConfig     `json:"train"`
	Val                ValConfig       `json:"val"`
	ReportDir          string          `json:"report_dir"`     // Parent directory of training reports
	ExportFormat       string          `json:"export_format"`  // Format for the exported model
	RunDB              string          `json:"run_db"`         // SQLite database of training runs. Empty disables run history.
	Artifacts          ArtifactsConfig `json:"artifacts"`      // Where to publish exported models
	TrainerBinary      string          `json:"trainer_binary"` // Path to the ultralytics 'yolo' CLI
	Dashboard          DashboardConfig `json:"dashboard"`
}

// Default returns a configuration with every optional value filled in
func Default() *Config {
	return &Config{
		Epochs: 100,
		Train: TrainConfig{
			Model:        "yolov8n.pt",
			Batch:        16,
			ImgSz:        640,
			Device:       "0",
			Patience:     50,
			Optimizer:    "AdamW",
			LR0:          0.001,
			LRF:          0.01,
			CosLR:        true,
			WarmupEpochs: 3.0,
			Project:      "runs/train",
			Name:         "my_lettuce_model",
			Plots:        true,
		},
		Val: ValConfig{
			Split: "test",
			Conf:  0.25,
		},
		ReportDir:     "training_logs",
		ExportFormat:  "onnx",
		TrainerBinary: "yolo",
		Dashboard: DashboardConfig{
			Port:      8090,
			RateLimit: 120,
		},
	}
}

// Load reads a JSON config file on top of the defaults, and then applies environment overrides.
// If filename is empty, only the defaults and the environment are used.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDatasetRoot); v != "" {
		c.DatasetRoot = v
	}
	if v := getenv(EnvEpochs); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("Invalid %v '%v': %w", EnvEpochs, v, err)
		}
		c.Epochs = n
	}
	if v := getenv(EnvDevice); v != "" {
		c.Train.Device = v
	}
	return nil
}

// Validate checks the settings that every command needs
func (c *Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, not %v", c.Epochs)
	}
	if _, err := c.Mapping(); err != nil {
		return err
	}
	if err := c.Classes().Validate(); err != nil {
		return err
	}
	if c.Artifacts.Filesystem != nil && c.Artifacts.GCS != nil {
		return fmt.Errorf("Only one of artifacts.filesystem and artifacts.gcs may be configured")
	}
	return nil
}

// ValidateDataset is Validate plus the requirements of the commands that work on a dataset
func (c *Config) ValidateDataset() error {
	if c.DatasetRoot == "" {
		return fmt.Errorf("dataset_root is not set")
	}
	return c.Validate()
}

// Mapping returns the class mapping, or the default mapping if none is configured
func (c *Config) Mapping() (labels.Mapping, error) {
	if len(c.ClassMapping) == 0 {
		return labels.DefaultMapping, nil
	}
	return labels.ParseMapping(c.ClassMapping)
}

// Classes returns the class names, or the default classes if none are configured
func (c *Config) Classes() yolo.Classes {
	if len(c.ClassNames) == 0 {
		return yolo.DefaultClasses
	}
	return yolo.Classes(c.ClassNames)
}
