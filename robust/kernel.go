// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package robust implements robust kernels that bound the influence of
// outlier residuals through iteratively reweighted least squares (IRLS).
package robust

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidScale is returned when a kernel scale is not a positive finite number.
var ErrInvalidScale = errors.New("robust: kernel scale must be positive and finite")

// Kernel converts a residual magnitude into an IRLS weight.
type Kernel interface {
	// Weight returns w(r) ∈ (0,1] such that w(r)·r² grows sub-quadratically beyond the kernel scale.
	Weight(r float64) float64
	// Cost returns the robust loss ρ(r), normalized so that ρ(r) ≈ ½r² near zero.
	Cost(r float64) float64
}

// Trivial is the plain least-squares kernel: w ≡ 1.
type Trivial struct{}

// Weight returns 1.
func (Trivial) Weight(float64) float64 { return 1 }

// Cost returns ½r².
func (Trivial) Cost(r float64) float64 { return 0.5 * r * r }

// Huber is quadratic for |r| ≤ δ and linear beyond:
//
//	ρ(r) = ½r²          for |r| ≤ δ
//	ρ(r) = δ(|r| - ½δ)  for |r| > δ
type Huber struct {
	delta float64
}

// NewHuber returns a Huber kernel with threshold delta.
func NewHuber(delta float64) (*Huber, error) {
	if err := checkScale(delta); err != nil {
		return nil, fmt.Errorf("huber: %w", err)
	}
	return &Huber{delta: delta}, nil
}

// Delta returns the threshold.
func (h *Huber) Delta() float64 { return h.delta }

// Weight returns 1 inside the threshold and δ/|r| outside.
func (h *Huber) Weight(r float64) float64 {
	a := math.Abs(r)
	if a <= h.delta {
		return 1
	}
	return h.delta / a
}

// Cost returns the Huber loss.
func (h *Huber) Cost(r float64) float64 {
	a := math.Abs(r)
	if a <= h.delta {
		return 0.5 * r * r
	}
	return h.delta * (a - 0.5*h.delta)
}

// Cauchy is smooth everywhere and suppresses large residuals more than Huber:
//
//	ρ(r) = (c²/2)·ln(1 + (r/c)²),  w(r) = 1/(1 + (r/c)²)
type Cauchy struct {
	c float64
}

// NewCauchy returns a Cauchy kernel with scale c.
func NewCauchy(c float64) (*Cauchy, error) {
	if err := checkScale(c); err != nil {
		return nil, fmt.Errorf("cauchy: %w", err)
	}
	return &Cauchy{c: c}, nil
}

// Scale returns c.
func (k *Cauchy) Scale() float64 { return k.c }

// Weight returns 1/(1 + (r/c)²).
func (k *Cauchy) Weight(r float64) float64 {
	u := r / k.c
	return 1 / (1 + u*u)
}

// Cost returns the Cauchy loss.
func (k *Cauchy) Cost(r float64) float64 {
	u := r / k.c
	return 0.5 * k.c * k.c * math.Log1p(u*u)
}

// New returns the kernel registered under name: "none", "huber" or "cauchy".
func New(name string, scale float64) (Kernel, error) {
	switch name {
	case "", "none", "trivial":
		return Trivial{}, nil
	case "huber":
		h, err := NewHuber(scale)
		if err != nil {
			return nil, err
		}
		return h, nil
	case "cauchy":
		c, err := NewCauchy(scale)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("robust: unknown kernel %q", name)
	}
}

func checkScale(s float64) error {
	if !(s > 0) || math.IsInf(s, 0) {
		return ErrInvalidScale
	}
	return nil
}
