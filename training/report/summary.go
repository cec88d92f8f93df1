package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Summary holds the best epoch's metrics, and the final losses
type Summary struct {
	BestEpoch    int     `json:"best_epoch"`
	MAP50        float64 `json:"mAP50"`
	MAP50_95     float64 `json:"mAP50-95"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	TrainBoxLoss float64 `json:"train_box_loss"`
	ValBoxLoss   float64 `json:"val_box_loss"`
}

func nan() float64 {
	return math.NaN()
}

// Summarize picks the epoch with the highest mAP50 (the first, if there is a tie),
// and takes the losses from the final epoch.
func Summarize(r *Results) (*Summary, error) {
	required := []string{ColEpoch, ColMAP50, ColMAP50_95, ColPrecision, ColRecall, ColTrainBoxLoss, ColValBoxLoss}
	idx := map[string]int{}
	for _, c := range required {
		i := r.Index(c)
		if i == -1 {
			return nil, fmt.Errorf("results.csv has no '%v' column", c)
		}
		idx[c] = i
	}
	if len(r.Rows) == 0 {
		return nil, fmt.Errorf("results.csv has no rows")
	}
	best := -1
	for i, row := range r.Rows {
		v := row[idx[ColMAP50]]
		if math.IsNaN(v) {
			continue
		}
		if best == -1 || v > r.Rows[best][idx[ColMAP50]] {
			best = i
		}
	}
	if best == -1 {
		return nil, fmt.Errorf("results.csv has no mAP50 values")
	}
	b := r.Rows[best]
	// A run that was cut short can leave a partial final row
	last := r.Rows[len(r.Rows)-1]
	for i := len(r.Rows) - 1; i >= 0; i-- {
		row := r.Rows[i]
		if !math.IsNaN(row[idx[ColTrainBoxLoss]]) && !math.IsNaN(row[idx[ColValBoxLoss]]) {
			last = row
			break
		}
	}
	return &Summary{
		BestEpoch:    int(finite(b[idx[ColEpoch]])),
		MAP50:        b[idx[ColMAP50]],
		MAP50_95:     finite(b[idx[ColMAP50_95]]),
		Precision:    finite(b[idx[ColPrecision]]),
		Recall:       finite(b[idx[ColRecall]]),
		TrainBoxLoss: finite(last[idx[ColTrainBoxLoss]]),
		ValBoxLoss:   finite(last[idx[ColValBoxLoss]]),
	}, nil
}

// finite maps NaN (an empty or unparsable cell) to zero, because JSON can't represent NaN
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// WriteSummary writes the summary as JSON, indented by 4 spaces
func WriteSummary(filename string, s *Summary) error {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetIndent("", "    ")
	if err := enc.Encode(s); err != nil {
		return err
	}
	return os.WriteFile(filename, b.Bytes(), 0644)
}

// ReadSummary reads summary.json
func ReadSummary(filename string) (*Summary, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	s := &Summary{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}
