// Package report collects the output of a training run into a timestamped folder:
//
//	training_logs/training_YYYYMMDD_HHMMSS/
//	  plots/     copies of the trainer's plots and results.csv, plus metrics_curve.png
//	  metrics/   summary.json
//	  models/    best.pt
//	  TRAINING_REPORT.txt
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/pkg/iox"
)

const (
	PlotsDir   = "plots"
	MetricsDir = "metrics"
	ModelsDir  = "models"

	SummaryFile   = "summary.json"
	ReportFile    = "TRAINING_REPORT.txt"
	CurveFile     = "metrics_curve.png"
	ResultsCSV    = "results.csv"
	BestModelFile = "best.pt"
)

// ResultFiles are the files that the trainer writes into its save directory, which we keep
var ResultFiles = []string{
	"results.png",
	"confusion_matrix.png",
	"confusion_matrix_normalized.png",
	"F1_curve.png",
	"PR_curve.png",
	"P_curve.png",
	"R_curve.png",
	ResultsCSV,
}

// CreateLogDirectory creates base/training_YYYYMMDD_HHMMSS and its subdirectories
func CreateLogDirectory(base string, now time.Time) (string, error) {
	dir := filepath.Join(base, "training_"+now.Format("20060102_150405"))
	for _, sub := range []string{PlotsDir, MetricsDir, ModelsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// SaveResults copies the trainer's output into logDir, and summarizes results.csv.
// Missing files are not an error. The returned summary is nil if there was no usable results.csv,
// in which case the error explains why (unless the file simply didn't exist).
func SaveResults(log logs.Log, runDir, logDir, bestWeights string) (*Summary, error) {
	for _, name := range ResultFiles {
		src := filepath.Join(runDir, name)
		if !iox.Exists(src) {
			continue
		}
		if err := iox.CopyFile(src, filepath.Join(logDir, PlotsDir, name)); err != nil {
			log.Warnf("Failed to copy %v: %v", src, err)
		}
	}
	if bestWeights != "" && iox.Exists(bestWeights) {
		if err := iox.CopyFile(bestWeights, filepath.Join(logDir, ModelsDir, BestModelFile)); err != nil {
			log.Warnf("Failed to copy %v: %v", bestWeights, err)
		}
	}

	csvPath := filepath.Join(runDir, ResultsCSV)
	if !iox.Exists(csvPath) {
		return nil, nil
	}
	results, err := ReadResultsFile(csvPath)
	if err != nil {
		return nil, fmt.Errorf("Failed to read %v: %w", csvPath, err)
	}
	summary, err := Summarize(results)
	if err != nil {
		return nil, err
	}
	if err := WriteSummary(filepath.Join(logDir, MetricsDir, SummaryFile), summary); err != nil {
		return summary, fmt.Errorf("Failed to write summary: %w", err)
	}
	if err := PlotMetrics(results, filepath.Join(logDir, PlotsDir, CurveFile)); err != nil {
		log.Warnf("Failed to plot metrics: %v", err)
	}
	return summary, nil
}

// ConfigItem is one line of the CONFIGURATION section of the text report
type ConfigItem struct {
	Key   string
	Value any
}

// FormatTextReport renders the human readable report
func FormatTextReport(config []ConfigItem, summary *Summary, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	line("%v", strings.Repeat("=", 50))
	line("YOLOv8 TRAINING REPORT")
	line("%v\n", strings.Repeat("=", 50))

	line("1. CONFIGURATION")
	line("%v", strings.Repeat("-", 30))
	for _, c := range config {
		line("%v: %v", c.Key, c.Value)
	}
	line("")

	line("2. BEST PERFORMANCE METRICS")
	line("%v", strings.Repeat("-", 30))
	if summary != nil {
		line("Best Result at Epoch: %v", summary.BestEpoch)
		line("mAP50       : %.4f", summary.MAP50)
		line("mAP50-95    : %.4f", summary.MAP50_95)
		line("Precision   : %.4f", summary.Precision)
		line("Recall      : %.4f", summary.Recall)
		line("Final Loss  : %.4f", summary.TrainBoxLoss)
	} else {
		line("No metrics data found.")
	}

	line("\n%v", strings.Repeat("=", 50))
	line("Report Generated: %v", now.Format("2006-01-02 15:04:05"))
	return b.String()
}

// GenerateTextReport writes TRAINING_REPORT.txt into logDir
func GenerateTextReport(logDir string, config []ConfigItem, summary *Summary, now time.Time) error {
	return os.WriteFile(filepath.Join(logDir, ReportFile), []byte(FormatTextReport(config, summary, now)), 0644)
}
