// Package integrate solves initial value problems dx/dt = f(t, x) with an
// adaptive Dormand–Prince 5(4) Runge–Kutta method.
//
// Solve returns the state at each requested output time. Steps are clipped so
// that every output time is hit exactly; no interpolation is involved.
package integrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Func evaluates the right-hand side at (t, x) into dxdt. It must not retain
// x or dxdt.
type Func func(t float64, x, dxdt []float64)

// Sentinel causes carried by IntegrationError.
var (
	ErrNonFinite      = errors.New("state is not finite")
	ErrStepUnderflow  = errors.New("step size underflow")
	ErrStepBudget     = errors.New("step budget exhausted")
	ErrDeadline       = errors.New("wall-clock budget exceeded")
	ErrInvalidRequest = errors.New("invalid integration request")
)

// IntegrationError reports a solver failure. State is the last accepted
// state, at time T.
type IntegrationError struct {
	T     float64
	State []float64
	Err   error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration failed at t=%g: %v", e.T, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// Options controls step-size selection and resource bounds.
type Options struct {
	RelTol      float64       // relative tolerance, default 1e-6
	AbsTol      float64       // absolute tolerance, default 1e-9
	InitialStep float64       // 0 selects a step automatically
	MaxStep     float64       // 0 means no limit beyond the output spacing
	MaxSteps    int           // accepted+rejected step budget, default 100000
	Timeout     time.Duration // wall-clock bound per Solve call, 0 for none
}

// DefaultOptions returns the tolerances used by the simulation driver.
func DefaultOptions() Options {
	return Options{
		RelTol:   1e-6,
		AbsTol:   1e-9,
		MaxSteps: 100000,
		Timeout:  30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RelTol <= 0 {
		o.RelTol = d.RelTol
	}
	if o.AbsTol <= 0 {
		o.AbsTol = d.AbsTol
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	return o
}

// Solution is a trajectory sampled at the requested times.
type Solution struct {
	T []float64
	X [][]float64 // X[k] is the state at T[k]

	Steps       int // accepted steps
	Rejected    int // rejected steps
	Evaluations int // right-hand-side calls
}

// Final returns the state at the last output time.
func (s *Solution) Final() []float64 {
	return s.X[len(s.X)-1]
}

// Dormand–Prince 5(4) tableau.
const (
	c2, c3, c4, c5 = 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9

	a21 = 1.0 / 5

	a31, a32 = 3.0 / 40, 9.0 / 40

	a41, a42, a43 = 44.0 / 45, -56.0 / 15, 32.0 / 9

	a51, a52, a53, a54 = 19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729

	a61, a62, a63, a64, a65 = 9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656

	// Fifth-order weights; also the seventh stage row (FSAL).
	b1, b3, b4, b5, b6 = 35.0 / 384, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84

	// Difference between fifth- and fourth-order weights.
	e1, e3, e4, e5, e6, e7 = 71.0 / 57600, -71.0 / 16695, 71.0 / 1920, -17253.0 / 339200, 22.0 / 525, -1.0 / 40
)

const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 5.0
)

// Solve integrates f from x0 at times[0] and returns the state at every entry
// of times, which must be strictly increasing. x0 is not modified.
func Solve(ctx context.Context, f Func, x0 []float64, times []float64, opts Options) (*Solution, error) {
	if len(times) < 1 {
		return nil, &IntegrationError{Err: fmt.Errorf("%w: no output times", ErrInvalidRequest)}
	}
	for k := 1; k < len(times); k++ {
		if !(times[k] > times[k-1]) {
			return nil, &IntegrationError{T: times[0], Err: fmt.Errorf("%w: output times not increasing at %d", ErrInvalidRequest, k)}
		}
	}
	if !allFinite(x0) {
		return nil, &IntegrationError{T: times[0], State: clone(x0), Err: ErrNonFinite}
	}

	opts = opts.withDefaults()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s := newStepper(f, len(x0), opts)
	sol := &Solution{
		T: append([]float64(nil), times...),
		X: make([][]float64, 0, len(times)),
	}

	t := times[0]
	x := clone(x0)
	sol.X = append(sol.X, clone(x))
	if len(times) == 1 {
		return sol, nil
	}

	f(t, x, s.k1)
	s.evals++
	h := opts.InitialStep
	if h <= 0 {
		h = s.initialStep(t, x, times[len(times)-1]-t)
	}

	for k := 1; k < len(times); k++ {
		target := times[k]
		for t < target {
			if err := ctx.Err(); err != nil {
				return nil, s.fail(t, x, fmt.Errorf("%w: %v", ErrDeadline, err))
			}
			if s.steps+s.rejected >= opts.MaxSteps {
				return nil, s.fail(t, x, ErrStepBudget)
			}
			if opts.MaxStep > 0 && h > opts.MaxStep {
				h = opts.MaxStep
			}

			step, last := h, false
			if t+step >= target {
				step, last = target-t, true
			}
			if step <= minStep(t) {
				if last {
					// Rounding residue in front of an output time.
					t = target
					break
				}
				return nil, s.fail(t, x, ErrStepUnderflow)
			}

			errNorm := s.attempt(t, x, step)
			if math.IsNaN(errNorm) || !allFinite(s.x5) {
				s.rejected++
				h = step * minFactor
				continue
			}
			if errNorm > 1 {
				s.rejected++
				h = step * stepFactor(errNorm, 1)
				continue
			}

			s.steps++
			if last {
				t = target
			} else {
				t += step
			}
			x, s.x5 = s.x5, x
			s.k1, s.k7 = s.k7, s.k1

			next := step * stepFactor(errNorm, maxFactor)
			if last {
				// A step shortened to land on an output time says nothing
				// against the step that was proposed before it.
				next = math.Max(next, h)
			}
			h = next
		}
		sol.X = append(sol.X, clone(x))
	}

	if !allFinite(x) {
		return nil, s.fail(t, x, ErrNonFinite)
	}
	sol.Steps, sol.Rejected, sol.Evaluations = s.steps, s.rejected, s.evals
	return sol, nil
}

// minStep is the smallest step that still advances t meaningfully.
func minStep(t float64) float64 {
	return 16 * (math.Nextafter(math.Abs(t), math.Inf(1)) - math.Abs(t))
}

func stepFactor(errNorm, ceiling float64) float64 {
	if errNorm == 0 {
		return ceiling
	}
	fac := safety * math.Pow(errNorm, -0.2)
	return math.Max(minFactor, math.Min(ceiling, fac))
}

// stepper owns the stage buffers for one Solve call.
type stepper struct {
	f    Func
	opts Options

	k1, k2, k3, k4, k5, k6, k7 []float64
	tmp, x5                    []float64

	steps, rejected, evals int
}

func newStepper(f Func, n int, opts Options) *stepper {
	buf := func() []float64 { return make([]float64, n) }
	return &stepper{
		f: f, opts: opts,
		k1: buf(), k2: buf(), k3: buf(), k4: buf(), k5: buf(), k6: buf(), k7: buf(),
		tmp: buf(), x5: buf(),
	}
}

// attempt takes one trial step of size h from (t, x), leaving the fifth-order
// result in s.x5 and its derivative in s.k7. It returns the scaled RMS error
// estimate; values <= 1 are acceptable.
func (s *stepper) attempt(t float64, x []float64, h float64) float64 {
	n := len(x)
	f := s.f

	for i := 0; i < n; i++ {
		s.tmp[i] = x[i] + h*a21*s.k1[i]
	}
	f(t+c2*h, s.tmp, s.k2)

	for i := 0; i < n; i++ {
		s.tmp[i] = x[i] + h*(a31*s.k1[i]+a32*s.k2[i])
	}
	f(t+c3*h, s.tmp, s.k3)

	for i := 0; i < n; i++ {
		s.tmp[i] = x[i] + h*(a41*s.k1[i]+a42*s.k2[i]+a43*s.k3[i])
	}
	f(t+c4*h, s.tmp, s.k4)

	for i := 0; i < n; i++ {
		s.tmp[i] = x[i] + h*(a51*s.k1[i]+a52*s.k2[i]+a53*s.k3[i]+a54*s.k4[i])
	}
	f(t+c5*h, s.tmp, s.k5)

	for i := 0; i < n; i++ {
		s.tmp[i] = x[i] + h*(a61*s.k1[i]+a62*s.k2[i]+a63*s.k3[i]+a64*s.k4[i]+a65*s.k5[i])
	}
	f(t+h, s.tmp, s.k6)

	for i := 0; i < n; i++ {
		s.x5[i] = x[i] + h*(b1*s.k1[i]+b3*s.k3[i]+b4*s.k4[i]+b5*s.k5[i]+b6*s.k6[i])
	}
	f(t+h, s.x5, s.k7)
	s.evals += 6

	var sum float64
	for i := 0; i < n; i++ {
		errI := h * (e1*s.k1[i] + e3*s.k3[i] + e4*s.k4[i] + e5*s.k5[i] + e6*s.k6[i] + e7*s.k7[i])
		scale := s.opts.AbsTol + s.opts.RelTol*math.Max(math.Abs(x[i]), math.Abs(s.x5[i]))
		r := errI / scale
		sum += r * r
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// initialStep picks a first step from the magnitudes of x and f(x), in the
// manner of Hairer, Nørsett & Wanner (II.4), without the second evaluation.
func (s *stepper) initialStep(t float64, x []float64, span float64) float64 {
	var d0, d1 float64
	for i := range x {
		scale := s.opts.AbsTol + s.opts.RelTol*math.Abs(x[i])
		d0 += (x[i] / scale) * (x[i] / scale)
		d1 += (s.k1[i] / scale) * (s.k1[i] / scale)
	}
	h := 1e-6
	if d0 > 1e-10 && d1 > 1e-10 {
		h = 0.01 * math.Sqrt(d0/d1)
	}
	if span > 0 {
		h = math.Min(h, span)
	}
	if s.opts.MaxStep > 0 {
		h = math.Min(h, s.opts.MaxStep)
	}
	return h
}

func (s *stepper) fail(t float64, x []float64, err error) error {
	return &IntegrationError{T: t, State: clone(x), Err: err}
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}
