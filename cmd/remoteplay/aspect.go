package main

import (
	"fmt"
	"math"
	"strings"
)

// AspectRatio is one entry of the fixed aspect cycle. The zero W/H entry is
// "Default": no explicit sizing, the presenter's natural layout applies.
type AspectRatio struct {
	Name string
	W    float64
	H    float64
}

var aspectRatios = []AspectRatio{
	{Name: "Default"},
	{Name: "16:9", W: 16, H: 9},
	{Name: "4:3", W: 4, H: 3},
	{Name: "1:1", W: 1, H: 1},
	{Name: "16:10", W: 16, H: 10},
	{Name: "2.21:1", W: 2.21, H: 1},
	{Name: "2.35:1", W: 2.35, H: 1},
	{Name: "2.39:1", W: 2.39, H: 1},
	{Name: "5:4", W: 5, H: 4},
}

func (a AspectRatio) IsDefault() bool { return a.W == 0 || a.H == 0 }

// Geometry returns the render size for a surface of the given height.
// explicit is false for Default, meaning sizing should be cleared.
func (a AspectRatio) Geometry(renderHeight int) (width, height int, explicit bool) {
	if a.IsDefault() || renderHeight <= 0 {
		return 0, 0, false
	}
	w := math.Round(float64(renderHeight) * a.W / a.H)
	return int(w), renderHeight, true
}

// aspectAt returns the ratio for index, clamping unknown indices to Default.
func aspectAt(index int) AspectRatio {
	if index < 0 || index >= len(aspectRatios) {
		return aspectRatios[0]
	}
	return aspectRatios[index]
}

func nextAspectIndex(index int) int {
	return (index + 1) % len(aspectRatios)
}

// ParseAspectRatio looks a mode up by name (case-insensitive, "default" included).
func ParseAspectRatio(name string) (int, error) {
	name = strings.TrimSpace(name)
	for i, a := range aspectRatios {
		if strings.EqualFold(a.Name, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown aspect ratio %q", name)
}
