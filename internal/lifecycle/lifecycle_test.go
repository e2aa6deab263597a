package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetShuttingDown_True(t *testing.T) {
	SetShuttingDown(true)
	defer SetShuttingDown(false)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
}

// TestShutdown_RunsStepsInOrder verifies every step runs in order, failures
// are joined and logged, and the flag is set.
func TestShutdown_RunsStepsInOrder(t *testing.T) {
	defer SetShuttingDown(false)
	core, logs := observer.New(zap.InfoLevel)

	var order []string
	boom := errors.New("boom")
	step := func(name string, err error) Step {
		return Step{Name: name, Run: func(ctx context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	err := Shutdown(context.Background(), zap.New(core), time.Second,
		step("http", nil),
		step("warmer", boom),
		step("cache", nil),
	)
	if !errors.Is(err, boom) {
		t.Errorf("Shutdown() error = %v, want boom", err)
	}
	if len(order) != 3 || order[0] != "http" || order[1] != "warmer" || order[2] != "cache" {
		t.Errorf("order = %v", order)
	}
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after Shutdown")
	}
	if logs.FilterMessage("shutdown step failed").Len() != 1 {
		t.Error("expected one failure log")
	}
	if logs.FilterMessage("shutdown step complete").Len() != 2 {
		t.Error("expected two completion logs")
	}
}

func TestShutdown_StepsSeeDeadline(t *testing.T) {
	defer SetShuttingDown(false)
	err := Shutdown(context.Background(), nil, 10*time.Millisecond, Step{
		Name: "slow",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want DeadlineExceeded", err)
	}
}
