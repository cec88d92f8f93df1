package yolo

import "fmt"

// Classes is an ordered list of class names. The index of a name is its class ID.
type Classes []string

// DefaultClasses is the closed set of classes that our lettuce detector is trained on
var DefaultClasses = Classes{
	"Italian",
	"Deer Tongue",
	"Green Lollo Rossa",
	"Red Coral",
	"Caramel Romaine",
	"Empty",
}

// Contains returns true if id is a valid class ID
func (c Classes) Contains(id int) bool {
	return id >= 0 && id < len(c)
}

// Name returns the name of the class, or "UNKNOWN" for an ID outside the set
func (c Classes) Name(id int) string {
	if !c.Contains(id) {
		return "UNKNOWN"
	}
	return c[id]
}

// Validate checks that there are no empty or duplicate names
func (c Classes) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("No class names defined")
	}
	seen := map[string]int{}
	for i, n := range c {
		if n == "" {
			return fmt.Errorf("Class %v has an empty name", i)
		}
		if prev, ok := seen[n]; ok {
			return fmt.Errorf("Class name '%v' is used by both %v and %v", n, prev, i)
		}
		seen[n] = i
	}
	return nil
}
