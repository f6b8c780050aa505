// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/curioloop/nlsq/linalg"
	"github.com/curioloop/nlsq/manifold"
	"github.com/curioloop/nlsq/nlls"
	"github.com/curioloop/nlsq/robust"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// SolverConfig holds the solver settings shared by every command.
// Values are read from an optional YAML file and overridden by explicit flags.
type SolverConfig struct {
	Method        string  `yaml:"method"`
	MaxIterations int     `yaml:"max_iterations"`
	StepTolerance float64 `yaml:"step_tolerance"`
	CostTolerance float64 `yaml:"cost_tolerance"`
	Lambda        float64 `yaml:"lambda"`
	DampingFactor float64 `yaml:"damping_factor"`
	Damping       string  `yaml:"damping"`
	Kernel        string  `yaml:"kernel"`
	KernelScale   float64 `yaml:"kernel_scale"`
	LinearSolver  string  `yaml:"linear_solver"`
	Pseudo        bool    `yaml:"pseudo"`
	Seed          uint64  `yaml:"seed"`
	LogLevel      int     `yaml:"log_level"`
}

// DefaultSolverConfig returns the settings used when neither file nor flag sets a value.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Method:        "lm",
		MaxIterations: 100,
		StepTolerance: 1e-10,
		CostTolerance: 1e-12,
		Lambda:        1e-3,
		DampingFactor: 2,
		Damping:       "identity",
		Kernel:        "none",
		KernelScale:   1,
		LinearSolver:  "dense",
		Seed:          1,
		LogLevel:      int(nlls.LogNoop),
	}
}

// SolverFlags binds SolverConfig to the command line.
type SolverFlags struct {
	ConfigFile string
	SolverConfig
}

// AddFlags registers the solver flags on fs.
func (f *SolverFlags) AddFlags(fs *pflag.FlagSet) {
	f.SolverConfig = DefaultSolverConfig()
	fs.StringVar(&f.ConfigFile, "config", "", "YAML file with solver settings; explicit flags take precedence")
	fs.StringVar(&f.Method, "method", f.Method, "solver: gn (Gauss-Newton) or lm (Levenberg-Marquardt)")
	fs.IntVar(&f.MaxIterations, "max-iterations", f.MaxIterations, "iteration budget")
	fs.Float64Var(&f.StepTolerance, "step-tolerance", f.StepTolerance, "stop when the step norm falls below")
	fs.Float64Var(&f.CostTolerance, "cost-tolerance", f.CostTolerance, "stop when the cost change falls below")
	fs.Float64Var(&f.Lambda, "lambda", f.Lambda, "initial Levenberg-Marquardt damping")
	fs.Float64Var(&f.DampingFactor, "damping-factor", f.DampingFactor, "damping multiplier on rejection and divisor on acceptance")
	fs.StringVar(&f.Damping, "damping", f.Damping, "damping matrix: identity or diagonal")
	fs.StringVar(&f.Kernel, "kernel", f.Kernel, "robust kernel: none, huber or cauchy")
	fs.Float64Var(&f.KernelScale, "kernel-scale", f.KernelScale, "robust kernel scale")
	fs.StringVar(&f.LinearSolver, "linear-solver", f.LinearSolver, "linear solver: dense (Cholesky/LU/SVD) or householder (HFTI least squares)")
	fs.BoolVar(&f.Pseudo, "pseudo", f.Pseudo, "fall back to the minimum norm step on singular normal equations")
	fs.Uint64Var(&f.Seed, "seed", f.Seed, "random seed of the synthetic data")
	fs.IntVar(&f.LogLevel, "log-level", f.LogLevel, "solver log level (-1 silent, 0 summary, 1..98 every n iterations, 99 trace, 101 verbose)")
}

var flagFields = map[string]func(dst, src *SolverConfig){
	"method":         func(d, s *SolverConfig) { d.Method = s.Method },
	"max-iterations": func(d, s *SolverConfig) { d.MaxIterations = s.MaxIterations },
	"step-tolerance": func(d, s *SolverConfig) { d.StepTolerance = s.StepTolerance },
	"cost-tolerance": func(d, s *SolverConfig) { d.CostTolerance = s.CostTolerance },
	"lambda":         func(d, s *SolverConfig) { d.Lambda = s.Lambda },
	"damping-factor": func(d, s *SolverConfig) { d.DampingFactor = s.DampingFactor },
	"damping":        func(d, s *SolverConfig) { d.Damping = s.Damping },
	"kernel":         func(d, s *SolverConfig) { d.Kernel = s.Kernel },
	"kernel-scale":   func(d, s *SolverConfig) { d.KernelScale = s.KernelScale },
	"linear-solver":  func(d, s *SolverConfig) { d.LinearSolver = s.LinearSolver },
	"pseudo":         func(d, s *SolverConfig) { d.Pseudo = s.Pseudo },
	"seed":           func(d, s *SolverConfig) { d.Seed = s.Seed },
	"log-level":      func(d, s *SolverConfig) { d.LogLevel = s.LogLevel },
}

// Complete merges the config file (if any) with the flags explicitly set on fs.
func (f *SolverFlags) Complete(fs *pflag.FlagSet) (SolverConfig, error) {
	if f.ConfigFile == "" {
		return f.SolverConfig, nil
	}
	file, err := os.Open(f.ConfigFile)
	if err != nil {
		return SolverConfig{}, err
	}
	defer file.Close()

	cfg, err := ReadSolverConfig(file)
	if err != nil {
		return SolverConfig{}, fmt.Errorf("%s: %w", f.ConfigFile, err)
	}
	fs.Visit(func(fl *pflag.Flag) {
		if set, ok := flagFields[fl.Name]; ok {
			set(&cfg, &f.SolverConfig)
		}
	})
	return cfg, nil
}

// ReadSolverConfig decodes YAML on top of DefaultSolverConfig. Unknown keys are rejected.
func ReadSolverConfig(r io.Reader) (SolverConfig, error) {
	cfg := DefaultSolverConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	return cfg, nil
}

// SolverMethod parses the method name.
func (c SolverConfig) SolverMethod() (nlls.Method, error) {
	switch strings.ToLower(c.Method) {
	case "gn", "gauss-newton":
		return nlls.GaussNewton, nil
	case "lm", "levenberg-marquardt":
		return nlls.LevenbergMarquardt, nil
	default:
		return 0, fmt.Errorf("unknown method %q", c.Method)
	}
}

// Problem builds a solver problem around residual with the configured settings.
func (c SolverConfig) Problem(m manifold.Parameterization, residual nlls.Residual, blockSize int) (nlls.Problem, error) {
	kernel, err := robust.New(c.Kernel, c.KernelScale)
	if err != nil {
		return nlls.Problem{}, err
	}
	var mode nlls.DampMode
	switch strings.ToLower(c.Damping) {
	case "", "identity":
		mode = nlls.DampIdentity
	case "diagonal":
		mode = nlls.DampDiagonal
	default:
		return nlls.Problem{}, fmt.Errorf("unknown damping %q", c.Damping)
	}
	var provider linalg.Provider
	switch strings.ToLower(c.LinearSolver) {
	case "", "dense":
		provider = linalg.Dense{}
	case "householder", "hfti":
		provider = linalg.Householder{}
	default:
		return nlls.Problem{}, fmt.Errorf("unknown linear solver %q", c.LinearSolver)
	}
	return nlls.Problem{
		Manifold: m,
		Residual: residual,
		Stop: nlls.Termination{
			MaxIterations: c.MaxIterations,
			StepTolerance: c.StepTolerance,
			CostTolerance: c.CostTolerance,
		},
		Kernel:    kernel,
		BlockSize: blockSize,
		Damping:   &nlls.Damping{Mode: mode, Initial: c.Lambda, Factor: c.DampingFactor},
		Provider:  provider,
		Pseudo:    c.Pseudo,
	}, nil
}

// Optimizer builds the configured solver for residual, logging to out.
func (c SolverConfig) Optimizer(m manifold.Parameterization, residual nlls.Residual, blockSize int, out io.Writer) (*nlls.Optimizer, error) {
	method, err := c.SolverMethod()
	if err != nil {
		return nil, err
	}
	p, err := c.Problem(m, residual, blockSize)
	if err != nil {
		return nil, err
	}
	return p.New(method, &nlls.Logger{Level: nlls.LogLevel(c.LogLevel), Msg: out, Out: io.Discard})
}

// Rand returns the seeded generator of the synthetic data.
func (c SolverConfig) Rand() *rand.Rand {
	return rand.New(rand.NewPCG(c.Seed, c.Seed^0x9e3779b97f4a7c15))
}
