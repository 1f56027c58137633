package calibration

import (
	"github.com/paulmach/orb"

	"gazelaundry/pkg/gaze"
)

// Grid returns n×n targets spread over the screen, inset by margin (a
// fraction of width and height). The center target comes first when n is
// odd so every session starts from the middle of the screen.
func Grid(res gaze.Resolution, n int, margin float64) []gaze.Point {
	if n < 1 {
		return nil
	}
	w, h := float64(res.Width), float64(res.Height)
	area := orb.Bound{
		Min: orb.Point{w * margin, h * margin},
		Max: orb.Point{w * (1 - margin), h * (1 - margin)},
	}
	center := gaze.FromOrb(area.Center())
	if n == 1 {
		return []gaze.Point{center}
	}

	stepX := (area.Max[0] - area.Min[0]) / float64(n-1)
	stepY := (area.Max[1] - area.Min[1]) / float64(n-1)

	points := make([]gaze.Point, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			p := gaze.Point{X: area.Min[0] + float64(col)*stepX, Y: area.Min[1] + float64(row)*stepY}
			if n%2 == 1 && p.Equal(center) {
				continue
			}
			points = append(points, p)
		}
	}
	if n%2 == 1 {
		points = append([]gaze.Point{center}, points...)
	}
	return points
}
