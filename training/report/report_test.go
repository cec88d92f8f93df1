package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `                  epoch,         train/box_loss,         train/cls_loss,   metrics/precision(B),      metrics/recall(B),       metrics/mAP50(B),    metrics/mAP50-95(B),           val/box_loss
                      1,                 1.5000,                 2.0000,                  0.500,                  0.400,                  0.450,                  0.200,                 1.6000
                      2,                 1.2000,                 1.5000,                  0.700,                  0.650,                  0.720,                  0.400,                 1.3000
                      3,                 1.1000,                 1.2000,                  0.690,                  0.660,                  0.720,                  0.410,                 1.2500
                      4,                 1.0000,                 1.1000,                  0.680,                  0.640,                  0.700,                  0.390,                 1.2000
`

func TestSummarize(t *testing.T) {
	r, err := ReadResults(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, "metrics/mAP50(B)", r.Columns[5])
	require.Equal(t, 4, len(r.Rows))

	s, err := Summarize(r)
	require.NoError(t, err)
	// Epochs 2 and 3 tie on mAP50, and the first one wins
	require.Equal(t, 2, s.BestEpoch)
	require.InDelta(t, 0.72, s.MAP50, 1e-9)
	require.InDelta(t, 0.40, s.MAP50_95, 1e-9)
	require.InDelta(t, 0.70, s.Precision, 1e-9)
	require.InDelta(t, 0.65, s.Recall, 1e-9)
	// Losses come from the last epoch
	require.InDelta(t, 1.0, s.TrainBoxLoss, 1e-9)
	require.InDelta(t, 1.2, s.ValBoxLoss, 1e-9)

	_, err = Summarize(&Results{Columns: []string{"epoch"}})
	require.Error(t, err)
	_, err = ReadResults(strings.NewReader(""))
	require.Error(t, err)
}

func TestSummarizePartialRow(t *testing.T) {
	// The run was killed while writing epoch 3, and epoch 2 has an empty precision cell
	csv := `epoch,train/box_loss,metrics/precision(B),metrics/recall(B),metrics/mAP50(B),metrics/mAP50-95(B),val/box_loss
1,1.5,0.5,0.4,0.45,0.2,1.6
2,1.2,,0.65,0.72,0.4,1.3
3,1.1,0.6
`
	r, err := ReadResults(strings.NewReader(csv))
	require.NoError(t, err)
	s, err := Summarize(r)
	require.NoError(t, err)
	require.Equal(t, 2, s.BestEpoch)
	require.Equal(t, 0.0, s.Precision)
	// Losses come from the last complete epoch
	require.InDelta(t, 1.2, s.TrainBoxLoss, 1e-9)
	require.InDelta(t, 1.3, s.ValBoxLoss, 1e-9)

	fn := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, WriteSummary(fn, s))
	back, err := ReadSummary(fn)
	require.NoError(t, err)
	require.Equal(t, s, back)
}

func TestSummaryJSON(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "summary.json")
	s := &Summary{BestEpoch: 2, MAP50: 0.72, MAP50_95: 0.4, Precision: 0.7, Recall: 0.65, TrainBoxLoss: 1, ValBoxLoss: 1.2}
	require.NoError(t, WriteSummary(fn, s))
	raw, _ := os.ReadFile(fn)
	require.True(t, strings.HasPrefix(string(raw), "{\n    \"best_epoch\": 2,\n    \"mAP50\": 0.72,\n    \"mAP50-95\": 0.4,"))
	back, err := ReadSummary(fn)
	require.NoError(t, err)
	require.Equal(t, s, back)
}

func TestTextReport(t *testing.T) {
	now := time.Date(2025, 12, 5, 23, 25, 46, 0, time.Local)
	cfg := []ConfigItem{{"Epochs", 100}, {"Device", "GPU"}}
	txt := FormatTextReport(cfg, &Summary{BestEpoch: 7, MAP50: 0.123456, MAP50_95: 0.5, Precision: 0.25, Recall: 1, TrainBoxLoss: 0.98766}, now)
	expect := strings.Repeat("=", 50) + "\n" +
		"YOLOv8 TRAINING REPORT\n" +
		strings.Repeat("=", 50) + "\n\n" +
		"1. CONFIGURATION\n" +
		strings.Repeat("-", 30) + "\n" +
		"Epochs: 100\n" +
		"Device: GPU\n" +
		"\n" +
		"2. BEST PERFORMANCE METRICS\n" +
		strings.Repeat("-", 30) + "\n" +
		"Best Result at Epoch: 7\n" +
		"mAP50       : 0.1235\n" +
		"mAP50-95    : 0.5000\n" +
		"Precision   : 0.2500\n" +
		"Recall      : 1.0000\n" +
		"Final Loss  : 0.9877\n" +
		"\n" + strings.Repeat("=", 50) + "\n" +
		"Report Generated: 2025-12-05 23:25:46\n"
	require.Equal(t, expect, txt)

	txt = FormatTextReport(nil, nil, now)
	require.Contains(t, txt, "No metrics data found.\n")
}

func TestSaveResults(t *testing.T) {
	log := logs.NewTestingLog(t)
	base := t.TempDir()
	now := time.Date(2025, 11, 27, 23, 20, 7, 0, time.Local)
	logDir, err := CreateLogDirectory(filepath.Join(base, "training_logs"), now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "training_logs", "training_20251127_232007"), logDir)
	for _, sub := range []string{PlotsDir, MetricsDir, ModelsDir} {
		st, err := os.Stat(filepath.Join(logDir, sub))
		require.NoError(t, err)
		require.True(t, st.IsDir())
	}

	runDir := filepath.Join(base, "runs", "train", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "weights"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, ResultsCSV), []byte(sampleCSV), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "results.png"), []byte("png"), 0644))
	best := filepath.Join(runDir, "weights", "best.pt")
	require.NoError(t, os.WriteFile(best, []byte("weights"), 0644))

	s, err := SaveResults(log, runDir, logDir, best)
	require.NoError(t, err)
	require.Equal(t, 2, s.BestEpoch)
	for _, fn := range []string{
		filepath.Join(logDir, PlotsDir, "results.png"),
		filepath.Join(logDir, PlotsDir, ResultsCSV),
		filepath.Join(logDir, PlotsDir, CurveFile),
		filepath.Join(logDir, ModelsDir, BestModelFile),
		filepath.Join(logDir, MetricsDir, SummaryFile),
	} {
		_, err := os.Stat(fn)
		require.NoError(t, err, fn)
	}
	_, err = os.Stat(filepath.Join(logDir, PlotsDir, "F1_curve.png"))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, GenerateTextReport(logDir, []ConfigItem{{"Epochs", 4}}, s, now))
	raw, err := os.ReadFile(filepath.Join(logDir, ReportFile))
	require.NoError(t, err)
	require.Contains(t, string(raw), "Best Result at Epoch: 2")

	// A run that never produced results.csv
	empty := t.TempDir()
	s, err = SaveResults(log, empty, logDir, "")
	require.NoError(t, err)
	require.Nil(t, s)
}
