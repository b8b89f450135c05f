package circuitbreaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/themule888/spread-scanner/internal/apperror"
)

func TestExecute_PassesThroughResult(t *testing.T) {
	cb := New[int](DefaultConfig("test"))

	got, err := cb.Execute(func() (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Execute() = %d, want 42", got)
	}
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New[string](DefaultConfig("test"))
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		if _, err := cb.Execute(func() (string, error) { return "", boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: error = %v, want %v", i, err, boom)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v after 5 failures, want open", cb.State())
	}

	called := false
	_, err := cb.Execute(func() (string, error) {
		called = true
		return "ok", nil
	})
	if called {
		t.Error("fn was invoked while breaker open")
	}
	if !apperror.HasCode(err, apperror.CodeCircuitOpen) {
		t.Errorf("error = %v, want code %s", err, apperror.CodeCircuitOpen)
	}
}

func TestExecute_StateChangeCallback(t *testing.T) {
	cfg := DefaultConfig("test")
	var transitions []gobreaker.State
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	cb := New[int](cfg)

	for i := 0; i < 5; i++ {
		cb.Execute(func() (int, error) { return 0, errors.New("fail") })
	}

	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("transitions = %v, want single transition to open", transitions)
	}
}
