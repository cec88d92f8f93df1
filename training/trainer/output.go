package trainer

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	ansiRegex     = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	saveDirRegex  = regexp.MustCompile(`Results saved to (.+)$`)
	exportedRegex = regexp.MustCompile(`saved as '([^']+)'`)
)

// StripANSI removes terminal color codes
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// OutputParser extracts the interesting facts from the trainer's console output
type OutputParser struct {
	SaveDir    string      // From "Results saved to <dir>"
	ExportPath string      // From "... saved as '<path>'"
	Metrics    *ValMetrics // From the "all" row of the validation table
}

// Feed gives the parser one line of output
func (p *OutputParser) Feed(line string) {
	line = strings.TrimSpace(StripANSI(line))
	if m := saveDirRegex.FindStringSubmatch(line); m != nil {
		p.SaveDir = strings.TrimSpace(m[1])
		return
	}
	if m := exportedRegex.FindStringSubmatch(line); m != nil {
		p.ExportPath = m[1]
		return
	}
	// The summary row of the validation table:
	//   Class  Images  Instances  Box(P  R  mAP50  mAP50-95)
	//   all    120     340        0.81   0.77  0.83  0.61
	fields := strings.Fields(line)
	if len(fields) == 7 && fields[0] == "all" {
		var v [6]float64
		for i := 1; i < 7; i++ {
			f, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return
			}
			v[i-1] = f
		}
		p.Metrics = &ValMetrics{
			Images:    int(v[0]),
			Instances: int(v[1]),
			Precision: v[2],
			Recall:    v[3],
			MAP50:     v[4],
			MAP50_95:  v[5],
		}
	}
}
