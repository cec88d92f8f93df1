package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/trainkit/dataset/labels"
	"github.com/cyclopcam/trainkit/pkg/yolo"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "trainkit.json")
	raw := `{
		"dataset_root": "/data/lettuce",
		"additional_datasets": ["/data/extra1"],
		"epochs": 50,
		"class_mapping": {"1": 3, "2": 4},
		"train": {"batch": 8, "device": "cpu"},
		"artifacts": {"filesystem": {"root": "/tmp/artifacts"}}
	}`
	require.NoError(t, os.WriteFile(fn, []byte(raw), 0644))

	t.Setenv(EnvEpochs, "")
	t.Setenv(EnvDevice, "")
	t.Setenv(EnvDatasetRoot, "")
	cfg, err := Load(fn)
	require.NoError(t, err)
	require.Equal(t, "/data/lettuce", cfg.DatasetRoot)
	require.Equal(t, []string{"/data/extra1"}, cfg.AdditionalDatasets)
	require.Equal(t, 50, cfg.Epochs)
	require.Equal(t, 8, cfg.Train.Batch)
	require.Equal(t, "cpu", cfg.Train.Device)
	// Defaults survive for keys that are not in the file
	require.Equal(t, 640, cfg.Train.ImgSz)
	require.Equal(t, "AdamW", cfg.Train.Optimizer)
	require.True(t, cfg.Train.Plots)
	require.Equal(t, "onnx", cfg.ExportFormat)
	require.Equal(t, "/tmp/artifacts", cfg.Artifacts.Filesystem.Root)
	require.NoError(t, cfg.Validate())

	m, err := cfg.Mapping()
	require.NoError(t, err)
	require.Equal(t, labels.Mapping{1: 3, 2: 4}, m)
	require.Equal(t, yolo.DefaultClasses, cfg.Classes())

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(fn, []byte("{not json"), 0644))
	_, err = Load(fn)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvDatasetRoot: "/elsewhere",
		EnvEpochs:      "3",
		EnvDevice:      "cpu",
	}
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	require.Equal(t, "/elsewhere", cfg.DatasetRoot)
	require.Equal(t, 3, cfg.Epochs)
	require.Equal(t, "cpu", cfg.Train.Device)

	env[EnvEpochs] = "many"
	require.Error(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Error(t, cfg.ValidateDataset())
	cfg.DatasetRoot = "/data"
	require.NoError(t, cfg.ValidateDataset())
	m, err := cfg.Mapping()
	require.NoError(t, err)
	require.Equal(t, labels.DefaultMapping, m)

	cfg.ClassMapping = map[string]int{"x": 1}
	require.Error(t, cfg.Validate())
	cfg.ClassMapping = nil

	cfg.Artifacts.Filesystem = &ArtifactsConfigFS{Root: "/a"}
	cfg.Artifacts.GCS = &ArtifactsConfigGCS{Bucket: "b"}
	require.Error(t, cfg.Validate())
	cfg.Artifacts.GCS = nil

	cfg.Epochs = 0
	require.Error(t, cfg.Validate())
	require.Error(t, cfg.ValidateDataset())
}
