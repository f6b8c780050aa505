// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/curioloop/nlsq/manifold"
	"github.com/curioloop/nlsq/nlls"
	"github.com/curioloop/nlsq/problems"
	"github.com/curioloop/nlsq/robust"
	"github.com/spf13/cobra"
)

// fitOptions is shared by every command that runs a solver.
type fitOptions struct {
	SolverFlags
	PlotFile string

	cfg SolverConfig
	Out io.Writer
}

func (o *fitOptions) addFlags(cmd *cobra.Command) {
	o.SolverFlags.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&o.PlotFile, "plot", "", "write the cost of every trial step to this image file")
}

func (o *fitOptions) Complete(cmd *cobra.Command) (err error) {
	o.cfg, err = o.SolverFlags.Complete(cmd.Flags())
	return
}

// fit runs the configured solver from x0 and prints the summary.
func (o *fitOptions) fit(title string, m manifold.Parameterization, res nlls.Residual, blockSize int, x0 []float64) (*nlls.Result, error) {
	opt, err := o.cfg.Optimizer(m, res, blockSize, o.Out)
	if err != nil {
		return nil, err
	}
	r, err := opt.Fit(x0)
	if r == nil {
		return nil, err
	}
	printResult(o.Out, opt.Method(), r)
	if err != nil {
		return r, err
	}
	if o.PlotFile != "" {
		if err = savePlot(o.PlotFile, fmt.Sprintf("%s (%s)", title, opt.Method()), r.Log); err != nil {
			return r, err
		}
		fmt.Fprintf(o.Out, "plot written to %s\n", o.PlotFile)
	}
	return r, nil
}

func printResult(out io.Writer, method nlls.Method, r *nlls.Result) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "method\t%s\n", method)
	fmt.Fprintf(w, "outcome\t%s\n", r.Outcome)
	fmt.Fprintf(w, "status\t%s\n", r.Status)
	fmt.Fprintf(w, "iterations\t%d\n", r.NumIter)
	fmt.Fprintf(w, "evaluations\t%d residual, %d jacobian\n", r.NumEval, r.NumJac)
	if method == nlls.LevenbergMarquardt {
		fmt.Fprintf(w, "rejected\t%d (final lambda %.3e)\n", r.NumReject, r.Lambda)
	} else {
		fmt.Fprintf(w, "ascent steps\t%d\n", r.NumNonDescent)
	}
	fmt.Fprintf(w, "cost\t%.6e\n", r.Cost)
	fmt.Fprintf(w, "elapsed\t%s\n", r.Elapsed)
	_ = w.Flush()
}

// poseError measures want⁻¹∘got.
func poseError(want, got manifold.Pose) (angle, shift float64) {
	d := want.Inverse().Compose(got)
	return manifold.Log(d.R).Norm(), d.T.Norm()
}

func kernelLabel(k robust.Kernel) string {
	switch k := k.(type) {
	case *robust.Huber:
		return fmt.Sprintf("huber δ=%g", k.Delta())
	case *robust.Cauchy:
		return fmt.Sprintf("cauchy c=%g", k.Scale())
	}
	return "none"
}

func printPose(out io.Writer, name string, p manifold.Pose, truth manifold.Pose) {
	angle, shift := poseError(truth, p)
	w := manifold.Log(p.R)
	fmt.Fprintf(out, "%-10s ω = [% .5f % .5f % .5f]  t = [% .5f % .5f % .5f]  |Δω| = %.2e  |Δt| = %.2e\n",
		name, w[0], w[1], w[2], p.T[0], p.T[1], p.T[2], angle, shift)
}

type ExpFitOptions struct {
	fitOptions
	A, B    float64
	Noise   float64
	Samples int
	XMax    float64
	Init    []float64
}

func NewCmdExpFit(out io.Writer) *cobra.Command {
	o := &ExpFitOptions{fitOptions: fitOptions{Out: out}}
	cmd := &cobra.Command{
		Use:   "expfit",
		Short: "Fit y = a·exp(b·x) to noisy samples",
		RunE: func(c *cobra.Command, args []string) error {
			if err := o.Complete(c); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}
	o.addFlags(cmd)
	cmd.Flags().Float64Var(&o.A, "a", 2, "true amplitude")
	cmd.Flags().Float64Var(&o.B, "b", 0.5, "true rate")
	cmd.Flags().Float64Var(&o.Noise, "noise", 0.1, "standard deviation of the sample noise")
	cmd.Flags().IntVar(&o.Samples, "samples", 50, "number of samples")
	cmd.Flags().Float64Var(&o.XMax, "x-max", 3, "samples are spread evenly on [0, x-max]")
	cmd.Flags().Float64SliceVar(&o.Init, "init", []float64{1, 1}, "initial [a, b]")
	return cmd
}

func (o *ExpFitOptions) Validate() error {
	switch {
	case o.Samples < 2:
		return errors.New("at least 2 samples are required")
	case len(o.Init) != 2:
		return errors.New("--init expects 2 values")
	case o.Noise < 0:
		return errors.New("noise must not be negative")
	}
	return nil
}

func (o *ExpFitOptions) Run() error {
	xs := make([]float64, o.Samples)
	for i := range xs {
		xs[i] = o.XMax * float64(i) / float64(o.Samples-1)
	}
	res := problems.ExpCurve{X: xs, Y: problems.ExpSamples(xs, o.A, o.B, o.Noise, o.cfg.Rand())}
	r, err := o.fit("y = a·exp(b·x)", manifold.Euclidean(2), res, 1, o.Init)
	if r != nil {
		fmt.Fprintf(o.Out, "estimate   a = %.6f  b = %.6f  (true %.6f, %.6f)\n", r.X[0], r.X[1], o.A, o.B)
	}
	return err
}

type LineFitOptions struct {
	fitOptions
	X, Y []float64
}

func NewCmdLineFit(out io.Writer) *cobra.Command {
	o := &LineFitOptions{fitOptions: fitOptions{Out: out}}
	cmd := &cobra.Command{
		Use:   "linefit",
		Short: "Fit y = a + b·x, by default to four points with one gross outlier",
		RunE: func(c *cobra.Command, args []string) error {
			if err := o.Complete(c); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}
	o.addFlags(cmd)
	cmd.Flags().Float64SliceVar(&o.X, "x", []float64{0, 1, 2, 3}, "sample abscissas")
	cmd.Flags().Float64SliceVar(&o.Y, "y", []float64{0.1, 2.1, 3.9, 100}, "sample ordinates")
	return cmd
}

func (o *LineFitOptions) Validate() error {
	if len(o.X) != len(o.Y) {
		return fmt.Errorf("%d abscissas but %d ordinates", len(o.X), len(o.Y))
	}
	if len(o.X) < 2 {
		return errors.New("at least 2 points are required")
	}
	return nil
}

func (o *LineFitOptions) Run() error {
	line := problems.Line{X: o.X, Y: o.Y}
	r, err := o.fit("y = a + b·x", manifold.Euclidean(2), line, 1, []float64{0, 0})
	if r == nil {
		return err
	}
	kernel, kerr := robust.New(o.cfg.Kernel, o.cfg.KernelScale)
	if kerr != nil {
		return kerr
	}
	res := make([]float64, line.Size())
	line.Residual(r.X, res)
	fmt.Fprintf(o.Out, "estimate   a = %.6f  b = %.6f  (kernel %s)\n", r.X[0], r.X[1], kernelLabel(kernel))
	fmt.Fprintf(o.Out, "robust loss %.6f\n", robust.Loss(kernel, 1, res))
	return err
}

// poseOptions configures the synthetic rigid-pose problems.
type poseOptions struct {
	fitOptions
	Points   int
	MaxAngle float64
	MaxShift float64
	Quat     bool
}

func (o *poseOptions) addPoseFlags(cmd *cobra.Command) {
	o.addFlags(cmd)
	cmd.Flags().IntVar(&o.Points, "points", 30, "number of points")
	cmd.Flags().Float64Var(&o.MaxAngle, "max-angle", 0.5, "bound of each rotation vector component of the true pose")
	cmd.Flags().Float64Var(&o.MaxShift, "max-shift", 1, "bound of each translation component of the true pose")
	cmd.Flags().BoolVar(&o.Quat, "quat", false, "store the pose as [t, q] instead of [t, R]")
}

func (o *poseOptions) storage() problems.Storage {
	if o.Quat {
		return problems.QuatStorage
	}
	return problems.MatrixStorage
}

func (o *poseOptions) Validate() error {
	if o.Points < 3 {
		return errors.New("at least 3 points are required")
	}
	return nil
}

type AlignOptions struct {
	poseOptions
	Noise float64
}

func NewCmdAlign(out io.Writer) *cobra.Command {
	o := &AlignOptions{poseOptions: poseOptions{fitOptions: fitOptions{Out: out}}}
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Recover a rigid transform between two point sets (ICP with known matches)",
		RunE: func(c *cobra.Command, args []string) error {
			if err := o.Complete(c); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}
	o.addPoseFlags(cmd)
	cmd.Flags().Float64Var(&o.Noise, "noise", 0.01, "standard deviation of the target point noise")
	return cmd
}

func (o *AlignOptions) Run() error {
	rng := o.cfg.Rand()
	truth := problems.RandomPose(rng, o.MaxAngle, o.MaxShift)
	src := problems.RandomPoints(rng, o.Points, manifold.Vec3{}, 2)
	dst := problems.Jitter(problems.Transform(truth, src), rng, o.Noise)

	closed, err := problems.AlignSVD(src, dst, nil)
	if err != nil {
		return err
	}

	s := o.storage()
	res := problems.PointAlignment{Src: src, Dst: dst, Storage: s}
	r, err := o.fit("point alignment", s.Manifold(), res, 3, s.Encode(manifold.IdentityPose()))
	if r != nil {
		printPose(o.Out, "truth", truth, truth)
		printPose(o.Out, "svd", closed, truth)
		printPose(o.Out, "iterative", s.Decode(r.X), truth)
	}
	return err
}

type PnPOptions struct {
	poseOptions
	Camera     problems.Camera
	PixelNoise float64
	InitRot    float64
	InitShift  float64
}

func NewCmdPnP(out io.Writer) *cobra.Command {
	o := &PnPOptions{poseOptions: poseOptions{fitOptions: fitOptions{Out: out}}}
	cmd := &cobra.Command{
		Use:   "pnp",
		Short: "Estimate a camera pose from 3D-2D correspondences by minimizing reprojection error",
		RunE: func(c *cobra.Command, args []string) error {
			if err := o.Complete(c); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}
	o.addPoseFlags(cmd)
	cmd.Flags().Float64Var(&o.Camera.Fx, "fx", 520.9, "focal length along x in pixels")
	cmd.Flags().Float64Var(&o.Camera.Fy, "fy", 521.0, "focal length along y in pixels")
	cmd.Flags().Float64Var(&o.Camera.Cx, "cx", 325.1, "principal point x")
	cmd.Flags().Float64Var(&o.Camera.Cy, "cy", 249.7, "principal point y")
	cmd.Flags().Float64Var(&o.PixelNoise, "pixel-noise", 0.5, "standard deviation of the pixel noise")
	cmd.Flags().Float64Var(&o.InitRot, "init-rot", 0.1, "rotation noise of the initial pose")
	cmd.Flags().Float64Var(&o.InitShift, "init-shift", 0.2, "translation noise of the initial pose")
	return cmd
}

func (o *PnPOptions) Validate() error {
	if err := o.poseOptions.Validate(); err != nil {
		return err
	}
	if !(o.Camera.Fx > 0) || !(o.Camera.Fy > 0) {
		return errors.New("focal lengths must be positive")
	}
	return nil
}

func (o *PnPOptions) Run() error {
	rng := o.cfg.Rand()
	truth := problems.RandomPose(rng, o.MaxAngle/5, o.MaxShift/5)
	pts := problems.RandomPoints(rng, o.Points, manifold.Vec3{0, 0, 5}, 1)
	pixels := problems.Observe(o.Camera, truth, pts)
	for i := range pixels {
		pixels[i][0] += o.PixelNoise * rng.NormFloat64()
		pixels[i][1] += o.PixelNoise * rng.NormFloat64()
	}
	start := problems.Perturb(truth, rng, o.InitRot, o.InitShift)

	s := o.storage()
	res := problems.Reprojection{Camera: o.Camera, Points: pts, Pixels: pixels, Storage: s}
	r, err := o.fit("reprojection", s.Manifold(), res, 2, s.Encode(start))
	if r != nil {
		printPose(o.Out, "truth", truth, truth)
		printPose(o.Out, "initial", start, truth)
		printPose(o.Out, "estimate", s.Decode(r.X), truth)
		fmt.Fprintf(o.Out, "rms reprojection error %.4f px\n", math.Sqrt(r.Cost/float64(o.Points)))
	}
	return err
}

type KernelsOptions struct {
	Scale float64
	Max   float64
	Steps int
	Out   io.Writer
}

func NewCmdKernels(out io.Writer) *cobra.Command {
	o := &KernelsOptions{Out: out}
	cmd := &cobra.Command{
		Use:   "kernels",
		Short: "Print weight and loss of the Huber and Cauchy kernels",
		RunE: func(c *cobra.Command, args []string) error {
			return o.Run()
		},
	}
	cmd.Flags().Float64Var(&o.Scale, "scale", 1, "kernel scale")
	cmd.Flags().Float64Var(&o.Max, "max", 5, "largest residual")
	cmd.Flags().IntVar(&o.Steps, "steps", 10, "number of intervals on [0, max]")
	return cmd
}

func (o *KernelsOptions) Run() error {
	if o.Steps <= 0 {
		return errors.New("steps must be positive")
	}
	huber, err := robust.NewHuber(o.Scale)
	if err != nil {
		return err
	}
	cauchy, err := robust.NewCauchy(o.Scale)
	if err != nil {
		return err
	}
	kernels := []robust.Kernel{robust.Trivial{}, huber, cauchy}

	w := tabwriter.NewWriter(o.Out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "r\tw(l2)\tρ(l2)\tw(huber)\tρ(huber)\tw(cauchy)\tρ(cauchy)\t")
	for i := 0; i <= o.Steps; i++ {
		r := o.Max * float64(i) / float64(o.Steps)
		fmt.Fprintf(w, "%.3f\t", r)
		for _, k := range kernels {
			fmt.Fprintf(w, "%.4f\t%.4f\t", k.Weight(r), k.Cost(r))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
