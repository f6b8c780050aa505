// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"math"

	"github.com/curioloop/nlsq/nlls"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// costPoints splits the trial steps of a run into accepted and rejected series.
// Non-positive and non-finite costs cannot be drawn on a log axis and are skipped.
func costPoints(log []nlls.Record) (accepted, rejected plotter.XYs) {
	for _, rec := range log {
		if !(rec.Cost > 0) || math.IsInf(rec.Cost, 0) {
			continue
		}
		xy := plotter.XY{X: float64(rec.Iter), Y: rec.Cost}
		if rec.Accepted {
			accepted = append(accepted, xy)
		} else {
			rejected = append(rejected, xy)
		}
	}
	return
}

// savePlot writes the cost of every trial step as a PNG (or any format vg supports by extension).
func savePlot(path, title string, log []nlls.Record) error {
	accepted, rejected := costPoints(log)
	if len(accepted)+len(rejected) == 0 {
		return errors.New("plot: no positive finite cost to draw")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "cost"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	if len(accepted) > 0 {
		line, points, err := plotter.NewLinePoints(accepted)
		if err != nil {
			return err
		}
		points.Shape = draw.CircleGlyph{}
		p.Add(line, points)
		p.Legend.Add("accepted", line, points)
	}
	if len(rejected) > 0 {
		s, err := plotter.NewScatter(rejected)
		if err != nil {
			return err
		}
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(s)
		p.Legend.Add("rejected", s)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
