package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const stageBuffer = 16

// Stage defines the interface for a pipeline stage.
// Each stage reads from input until it is closed and sends results to output.
// A stage must handle items in the order it receives them.
type Stage interface {
	Execute(ctx context.Context, input <-chan interface{}, output chan<- interface{}, logger *zap.Logger) error
}

// Pipeline manages a sequence of stages that process data in a chain.
type Pipeline struct {
	stages []Stage     // List of stages in the pipeline
	logger *zap.Logger // Logger for pipeline-wide logging
}

// New creates a new Pipeline instance with the given logger.
func New(logger *zap.Logger) *Pipeline {
	return &Pipeline{
		logger: logger,
	}
}

// AddStage appends a stage to the pipeline.
func (p *Pipeline) AddStage(stage Stage) {
	p.stages = append(p.stages, stage)
}

// Run executes the pipeline with the given input channel.
//
// Each stage runs in its own goroutine; stage i reads what stage i-1 wrote.
// Output of the last stage is drained and discarded. Run returns the first
// stage error, or ctx.Err() if ctx is canceled before the stages finish.
// In both cases every stage has returned by the time Run does.
func (p *Pipeline) Run(ctx context.Context, input <-chan interface{}) error {
	if len(p.stages) == 0 {
		p.logger.Warn("no stages in pipeline")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	in := input
	for i, stage := range p.stages {
		out := make(chan interface{}, stageBuffer)
		stageIn, idx := in, i
		stage := stage

		g.Go(func() error {
			defer close(out)
			if err := stage.Execute(gctx, stageIn, out, p.logger); err != nil {
				p.logger.Error("stage execution failed",
					zap.Int("stage", idx),
					zap.Error(err))
				return fmt.Errorf("stage %d: %w", idx, err)
			}
			return nil
		})
		in = out
	}

	last := in
	g.Go(func() error {
		for range last {
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		p.logger.Debug("pipeline completed")
		return nil
	case <-ctx.Done():
		p.logger.Info("pipeline canceled, waiting for stages", zap.Error(ctx.Err()))
		<-done
		return ctx.Err()
	}
}

// Send delivers v on out unless ctx is canceled first.
func Send(ctx context.Context, out chan<- interface{}, v interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- v:
		return nil
	}
}

// Receive waits for the next item on in. ok is false once in is closed.
func Receive(ctx context.Context, in <-chan interface{}) (v interface{}, ok bool, err error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case v, ok = <-in:
		return v, ok, nil
	}
}
