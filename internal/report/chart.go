package report

import (
	"errors"
	"lotwatch/internal/store"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoHistory = errors.New("no snapshots to chart")

// WriteHistoryChart saves the bid history of a lot as an image, the format
// follows the extension of `path` (png, svg, pdf).
func WriteHistoryChart(path string, snapshots []store.Snapshot) error {
	if len(snapshots) == 0 {
		return ErrNoHistory
	}

	p := plot.New()
	p.Title.Text = "Lot " + snapshots[0].LotID
	p.X.Label.Text = "Observed"
	p.Y.Label.Text = "Current bid ($)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "Jan 2\n15:04"}
	p.Add(plotter.NewGrid())

	points := make(plotter.XYs, len(snapshots))
	for i, s := range snapshots {
		points[i].X = float64(s.ObservedAt.Unix())
		points[i].Y = s.CurrentBid.InexactFloat64()
	}

	line, scatter, err := plotter.NewLinePoints(points)
	if err != nil {
		return err
	}
	p.Add(line, scatter)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
