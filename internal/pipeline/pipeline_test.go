package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nao1215/sitemapgen/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, crawl *model.Crawl) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, crawl *model.Crawl) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, crawl)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("adds single step", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "test-step"})

		if p.StepCount() != 1 {
			t.Errorf("expected 1 step, got %d", p.StepCount())
		}
	})

	t.Run("maintains step order", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddSteps(&mockStep{name: "a"}, &mockStep{name: "b"})
		p.AddStep(&mockStep{name: "c"})

		names := p.StepNames()
		if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
			t.Errorf("unexpected order %v", names)
		}
	})

	t.Run("returns empty slice for empty pipeline", func(t *testing.T) {
		t.Parallel()

		if names := New().StepNames(); len(names) != 0 {
			t.Errorf("expected no names, got %v", names)
		}
	})
}

// TestPipelineExecute tests step execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		executionOrder := make([]string, 0)

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{
			name: "step-1",
			doFunc: func(_ context.Context, crawl *model.Crawl) error {
				executionOrder = append(executionOrder, "step-1")
				crawl.RunID = 7
				return nil
			},
		})
		p.AddStep(&mockStep{
			name: "step-2",
			doFunc: func(_ context.Context, crawl *model.Crawl) error {
				if crawl.RunID != 7 {
					t.Error("step-2 did not see the change of step-1")
				}
				executionOrder = append(executionOrder, "step-2")
				return nil
			},
		})

		if err := p.Execute(context.Background(), &model.Crawl{Seed: "https://example.com/"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executionOrder) != 2 || executionOrder[0] != "step-1" || executionOrder[1] != "step-2" {
			t.Errorf("wrong execution order: %v", executionOrder)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		second := &mockStep{name: "should-not-run"}

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(_ context.Context, _ *model.Crawl) error {
				return expectedErr
			},
		})
		p.AddStep(second)

		err := p.Execute(context.Background(), &model.Crawl{})
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if second.callCount != 0 {
			t.Error("second step should not have been called")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		errA := errors.New("a failed")
		errC := errors.New("c failed")
		b := &mockStep{name: "b"}

		p := New(WithContinueOnError(true), WithLogger(quietLogger()))
		p.AddStep(&mockStep{name: "a", doFunc: func(context.Context, *model.Crawl) error { return errA }})
		p.AddStep(b)
		p.AddStep(&mockStep{name: "c", doFunc: func(context.Context, *model.Crawl) error { return errC }})

		err := p.Execute(context.Background(), &model.Crawl{})
		if !errors.Is(err, errA) || !errors.Is(err, errC) {
			t.Errorf("expected both errors joined, got %v", err)
		}
		if b.callCount != 1 {
			t.Error("step after a failure should have run")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "never"}
		p := New(WithLogger(quietLogger()))
		p.AddStep(step)

		if err := p.Execute(ctx, &model.Crawl{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not run after cancellation")
		}
	})
}
