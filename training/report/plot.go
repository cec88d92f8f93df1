package report

import (
	"fmt"
	"math"

	"github.com/fogleman/gg"
)

type series struct {
	column string
	label  string
	color  string
}

var curveSeries = []series{
	{ColMAP50, "mAP50", "#1f77b4"},
	{ColMAP50_95, "mAP50-95", "#ff7f0e"},
	{ColPrecision, "precision", "#2ca02c"},
	{ColRecall, "recall", "#d62728"},
}

// PlotMetrics draws the validation metrics of every epoch, on a 0..1 scale
func PlotMetrics(r *Results, filename string) error {
	if len(r.Rows) == 0 {
		return fmt.Errorf("No rows to plot")
	}
	const (
		width  = 800
		height = 500
		left   = 60.0
		right  = 20.0
		top    = 30.0
		bottom = 50.0
	)
	pw := width - left - right
	ph := height - top - bottom

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// grid and axis labels
	dc.SetLineWidth(1)
	for i := 0; i <= 10; i++ {
		y := top + ph - ph*float64(i)/10
		dc.SetHexColor("#e0e0e0")
		dc.DrawLine(left, y, left+pw, y)
		dc.Stroke()
		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", float64(i)/10), left-8, y, 1, 0.5)
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(left, top, pw, ph)
	dc.Stroke()

	n := len(r.Rows)
	xOf := func(i int) float64 {
		if n == 1 {
			return left + pw/2
		}
		return left + pw*float64(i)/float64(n-1)
	}
	yOf := func(v float64) float64 {
		return top + ph - ph*math.Max(0, math.Min(1, v))
	}

	epochs := r.Column(ColEpoch)
	if epochs != nil {
		dc.DrawStringAnchored(fmt.Sprintf("%v", epochs[0]), left, top+ph+16, 0.5, 0.5)
		dc.DrawStringAnchored(fmt.Sprintf("%v", epochs[n-1]), left+pw, top+ph+16, 0.5, 0.5)
	}
	dc.DrawStringAnchored("epoch", left+pw/2, height-14, 0.5, 0.5)

	dc.SetLineWidth(2)
	legendX := left + 10
	for _, s := range curveSeries {
		values := r.Column(s.column)
		if values == nil {
			continue
		}
		dc.SetHexColor(s.color)
		started := false
		for i, v := range values {
			if math.IsNaN(v) {
				started = false
				continue
			}
			if !started {
				dc.MoveTo(xOf(i), yOf(v))
				started = true
			} else {
				dc.LineTo(xOf(i), yOf(v))
			}
		}
		dc.Stroke()
		dc.DrawString(s.label, legendX, top-10)
		legendX += 100
	}

	return dc.SavePNG(filename)
}
