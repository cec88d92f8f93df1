package yolo

import (
	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"
)

// Box is a bounding box in YOLO's normalized coordinates (all values in [0,1])
type Box struct {
	CX float32
	CY float32
	W  float32
	H  float32
}

func (b Box) X1() float32 { return b.CX - b.W/2 }
func (b Box) Y1() float32 { return b.CY - b.H/2 }
func (b Box) X2() float32 { return b.CX + b.W/2 }
func (b Box) Y2() float32 { return b.CY + b.H/2 }

func (b Box) Area() float32 {
	return math32.Max(0, b.W) * math32.Max(0, b.H)
}

func (b Box) Intersection(o Box) float32 {
	w := math32.Min(b.X2(), o.X2()) - math32.Max(b.X1(), o.X1())
	h := math32.Min(b.Y2(), o.Y2()) - math32.Max(b.Y1(), o.Y1())
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Intersection over Union
func (b Box) IOU(o Box) float32 {
	inter := b.Intersection(o)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Distance between box centers
func (b Box) CenterDistance(o Box) float32 {
	dx := b.CX - o.CX
	dy := b.CY - o.CY
	return math32.Sqrt(dx*dx + dy*dy)
}

// The spatial index works in integers, so normalized coordinates are scaled up
const fixedScale = 1 << 16

func toFixed(v float32) int32 {
	return int32(math32.Floor(v * fixedScale))
}

// A labelled box, as referenced by FindOverlaps
type ClassBox struct {
	Class int
	Box   Box
}

// Overlap is a pair of boxes (indices into the input slice) of the same class
// that overlap by at least the requested IoU.
type Overlap struct {
	A   int
	B   int
	IOU float32
}

// FindOverlaps returns all pairs of same-class boxes with IoU >= minIOU.
// Such pairs are almost always an annotation mistake (a box drawn twice).
// Each pair is returned once, with A < B.
func FindOverlaps(boxes []ClassBox, minIOU float32) []Overlap {
	if len(boxes) < 2 {
		return nil
	}
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(boxes))
	for _, b := range boxes {
		fb.Add(toFixed(b.Box.X1()), toFixed(b.Box.Y1()), toFixed(b.Box.X2()), toFixed(b.Box.Y2()))
	}
	fb.Finish()

	var result []Overlap
	for i, a := range boxes {
		for _, j := range fb.Search(toFixed(a.Box.X1()), toFixed(a.Box.Y1()), toFixed(a.Box.X2()), toFixed(a.Box.Y2())) {
			if j <= i || boxes[j].Class != a.Class {
				continue
			}
			iou := a.Box.IOU(boxes[j].Box)
			if iou >= minIOU {
				result = append(result, Overlap{A: i, B: j, IOU: iou})
			}
		}
	}
	return result
}
