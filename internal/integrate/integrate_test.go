package integrate

import (
	"context"
	"errors"
	"math"
	"testing"
)

func linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = a + (b-a)*float64(i)/float64(n-1)
	}
	return out
}

func TestSolve_ExponentialDecay(t *testing.T) {
	decay := func(_ float64, x, dxdt []float64) {
		for i := range x {
			dxdt[i] = -float64(i+1) * x[i]
		}
	}
	times := linspace(0, 5, 51)
	sol, err := Solve(context.Background(), decay, []float64{1, 2}, times, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.X) != len(times) {
		t.Fatalf("got %d states, want %d", len(sol.X), len(times))
	}
	for k, tk := range times {
		want0 := math.Exp(-tk)
		want1 := 2 * math.Exp(-2*tk)
		if math.Abs(sol.X[k][0]-want0) > 1e-6 || math.Abs(sol.X[k][1]-want1) > 1e-6 {
			t.Errorf("t=%v: got %v, want [%v %v]", tk, sol.X[k], want0, want1)
		}
	}
	if sol.Steps == 0 || sol.Evaluations == 0 {
		t.Errorf("expected step statistics, got steps=%d evals=%d", sol.Steps, sol.Evaluations)
	}
}

func TestSolve_HarmonicOscillatorPeriod(t *testing.T) {
	osc := func(_ float64, x, dxdt []float64) {
		dxdt[0] = x[1]
		dxdt[1] = -x[0]
	}
	opts := DefaultOptions()
	opts.RelTol, opts.AbsTol = 1e-9, 1e-12
	sol, err := Solve(context.Background(), osc, []float64{1, 0}, []float64{0, 2 * math.Pi}, opts)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	final := sol.Final()
	if math.Abs(final[0]-1) > 1e-6 || math.Abs(final[1]) > 1e-6 {
		t.Errorf("after one period: %v, want [1 0]", final)
	}
}

func TestSolve_OutputTimesAreExact(t *testing.T) {
	f := func(_ float64, x, dxdt []float64) { dxdt[0] = 1 }
	times := []float64{0, 0.1, 0.25, 7}
	sol, err := Solve(context.Background(), f, []float64{0}, times, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for k, tk := range times {
		if sol.T[k] != tk {
			t.Errorf("T[%d] = %v, want %v", k, sol.T[k], tk)
		}
		if math.Abs(sol.X[k][0]-tk) > 1e-12 {
			t.Errorf("x(%v) = %v, want %v", tk, sol.X[k][0], tk)
		}
	}
}

func TestSolve_ZeroDerivativeHoldsExactly(t *testing.T) {
	f := func(_ float64, x, dxdt []float64) {
		dxdt[0] = 0
		dxdt[1] = 1 - x[1]
	}
	sol, err := Solve(context.Background(), f, []float64{0.123456789, 0}, linspace(0, 30, 100), DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for k, x := range sol.X {
		if x[0] != 0.123456789 {
			t.Fatalf("x[0] drifted at t=%v: %v", sol.T[k], x[0])
		}
	}
}

func TestSolve_DoesNotModifyInitialState(t *testing.T) {
	f := func(_ float64, x, dxdt []float64) { dxdt[0] = -x[0] }
	x0 := []float64{1}
	if _, err := Solve(context.Background(), f, x0, []float64{0, 1}, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if x0[0] != 1 {
		t.Errorf("x0 modified: %v", x0)
	}
}

func TestSolve_SingleTime(t *testing.T) {
	f := func(_ float64, x, dxdt []float64) { dxdt[0] = 1 }
	sol, err := Solve(context.Background(), f, []float64{3}, []float64{2}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.X) != 1 || sol.Final()[0] != 3 {
		t.Errorf("unexpected solution %+v", sol)
	}
}

func TestSolve_Errors(t *testing.T) {
	smooth := func(_ float64, x, dxdt []float64) { dxdt[0] = -x[0] }
	blowsUp := func(t float64, x, dxdt []float64) {
		if t > 1 {
			dxdt[0] = math.NaN()
			return
		}
		dxdt[0] = 1
	}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		f     Func
		x0    []float64
		times []float64
		opts  Options
		want  error
	}{
		{"no times", context.Background(), smooth, []float64{1}, nil, DefaultOptions(), ErrInvalidRequest},
		{"decreasing times", context.Background(), smooth, []float64{1}, []float64{0, 2, 1}, DefaultOptions(), ErrInvalidRequest},
		{"nan initial state", context.Background(), smooth, []float64{math.NaN()}, []float64{0, 1}, DefaultOptions(), ErrNonFinite},
		{"rhs turns nan", context.Background(), blowsUp, []float64{0}, []float64{0, 5}, DefaultOptions(), ErrStepUnderflow},
		{"step budget", context.Background(), smooth, []float64{1}, []float64{0, 1000}, Options{MaxSteps: 3, MaxStep: 0.01}, ErrStepBudget},
		{"cancelled context", cancelled, smooth, []float64{1}, []float64{0, 1}, DefaultOptions(), ErrDeadline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Solve(tt.ctx, tt.f, tt.x0, tt.times, tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			var ie *IntegrationError
			if !errors.As(err, &ie) {
				t.Fatalf("expected *IntegrationError, got %T: %v", err, err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSolve_FailureCarriesLastValidState(t *testing.T) {
	blowsUp := func(t float64, x, dxdt []float64) {
		if t > 1 {
			dxdt[0] = math.Inf(1)
			return
		}
		dxdt[0] = 1
	}
	_, err := Solve(context.Background(), blowsUp, []float64{0}, []float64{0, 5}, DefaultOptions())
	var ie *IntegrationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *IntegrationError, got %v", err)
	}
	if ie.T > 1+1e-9 || ie.T < 0.5 {
		t.Errorf("failure time = %v, want close to 1", ie.T)
	}
	if len(ie.State) != 1 || math.IsInf(ie.State[0], 0) || math.IsNaN(ie.State[0]) {
		t.Errorf("last state = %v, want finite", ie.State)
	}
}
