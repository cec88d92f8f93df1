package main

import (
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/training/config"
	"github.com/stretchr/testify/require"
)

func TestPipelineSplitsSequentially(t *testing.T) {
	cfg := config.Default()
	cfg.DatasetRoot = t.TempDir()
	p := newPipeline(logs.NewTestingLog(t), cfg, nil, nil, nil)
	require.LessOrEqual(t, p.Splitter.Options.Workers, 1)
}
