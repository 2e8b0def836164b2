// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Stage is one unit of work of a [Pipeline].
type Stage interface {
	// Name identifies the stage in events and errors.
	Name() string

	// Run performs the stage. It reports its own progress as a fraction in
	// [0,1] and may read the outputs of earlier stages from state.
	Run(ctx context.Context, state *State, report ProgressFunc) (StageOutput, error)
}

// StageOutput is the result of a stage. It is implemented by
// [*InstallerOutput] and [*ArchiveOutput] only.
type StageOutput interface {
	stageOutput()
}

// InstallerOutput is produced by [InstallerStage].
type InstallerOutput struct {
	GameDir  string        `json:"game_dir"`
	Metadata *GameMetadata `json:"metadata,omitempty"`
	IconPath string        `json:"icon_path,omitempty"`
	Header   Header        `json:"header"`
}

func (*InstallerOutput) stageOutput() {}

// ArchiveOutput is produced by [ArchiveStage].
type ArchiveOutput struct {
	Dir    string `json:"dir"`
	Prefix string `json:"prefix"`
}

func (*ArchiveOutput) stageOutput() {}

// State is shared by the stages of one pipeline run. Outputs written by
// stage i are visible to every later stage.
type State struct {
	// StageIndex is the index of the running stage
	StageIndex int

	outputs []StageOutput
}

// Outputs returns the outputs of the completed stages in order.
func (s *State) Outputs() []StageOutput {
	return append([]StageOutput(nil), s.outputs...)
}

// Installer returns the latest [InstallerOutput].
func (s *State) Installer() (*InstallerOutput, bool) {
	for i := len(s.outputs) - 1; i >= 0; i-- {
		if out, ok := s.outputs[i].(*InstallerOutput); ok {
			return out, true
		}
	}
	return nil, false
}

// Archive returns the latest [ArchiveOutput].
func (s *State) Archive() (*ArchiveOutput, bool) {
	for i := len(s.outputs) - 1; i >= 0; i-- {
		if out, ok := s.outputs[i].(*ArchiveOutput); ok {
			return out, true
		}
	}
	return nil, false
}

func (s *State) add(out StageOutput) {
	if out != nil {
		s.outputs = append(s.outputs, out)
	}
}

// EventKind classifies pipeline events.
type EventKind int

const (
	// EventProgress reports progress of the running stage
	EventProgress EventKind = iota

	// EventError ends a failed run
	EventError

	// EventComplete ends a successful run
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventComplete:
		return "complete"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is emitted by a running pipeline.
type Event struct {
	Kind       EventKind
	StageIndex int
	StageName  string
	Message    string

	// Fraction is the progress of the stage in [0,1]
	Fraction float64

	// Percent is the weighted progress of the run in [0,100]. It never
	// decreases.
	Percent float64

	// Err is set for EventError
	Err error

	// Output is set on the progress event that completes a stage
	Output StageOutput

	// State is set on the terminal event
	State *State
}

// Builder collects the stages of a [Pipeline].
type Builder struct {
	cfg     *Config
	stages  []Stage
	weights []float64
}

// NewBuilder returns an empty builder. cfg provides the logger and may be
// nil.
func NewBuilder(cfg *Config) *Builder {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Builder{cfg: cfg}
}

// AddStage appends stage with its share of the overall progress. Weights are
// normalized by [Builder.Build].
func (b *Builder) AddStage(stage Stage, weight float64) *Builder {
	b.stages = append(b.stages, stage)
	b.weights = append(b.weights, weight)
	return b
}

// Build validates the stages and returns the pipeline. If all weights are
// zero, the stages share the progress equally.
func (b *Builder) Build() (*Pipeline, error) {
	if len(b.stages) == 0 {
		return nil, errors.New("pipeline has no stages")
	}

	var sum float64
	for i, w := range b.weights {
		if b.stages[i] == nil {
			return nil, fmt.Errorf("stage %d is nil", i)
		}
		if w < 0 {
			return nil, fmt.Errorf("stage %s has negative weight %v", b.stages[i].Name(), w)
		}
		sum += w
	}

	weights := make([]float64, len(b.weights))
	for i, w := range b.weights {
		if sum == 0 {
			weights[i] = 1 / float64(len(weights))
			continue
		}
		weights[i] = w / sum
	}

	return &Pipeline{
		cfg:     b.cfg,
		stages:  append([]Stage(nil), b.stages...),
		weights: weights,
	}, nil
}

// Pipeline runs its stages strictly one after another. The first failing
// stage ends the run; no later stage is started.
type Pipeline struct {
	cfg     *Config
	stages  []Stage
	weights []float64
}

// Start runs the pipeline in the background. The returned channel delivers
// progress events followed by exactly one EventError or EventComplete and is
// closed afterwards. It must be drained.
func (p *Pipeline) Start(ctx context.Context) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		p.run(ctx, events)
	}()
	return events
}

func (p *Pipeline) run(ctx context.Context, events chan<- Event) {
	state := &State{}
	progress := &weightedProgress{weights: p.weights}

	var (
		failed   atomic.Bool
		failedAt atomic.Int64
	)

	g := new(errgroup.Group)
	g.SetLimit(1)

	for i, stage := range p.stages {
		// with a limit of one, Go blocks until the previous stage returned
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				failed.Store(true)
				failedAt.Store(int64(i))
				return err
			}

			state.StageIndex = i
			p.cfg.Logger().Info("start stage", "index", i, "stage", stage.Name())

			report := func(fraction float64, message string) {
				events <- Event{
					Kind:       EventProgress,
					StageIndex: i,
					StageName:  stage.Name(),
					Message:    message,
					Fraction:   clampFraction(fraction),
					Percent:    progress.update(i, fraction),
				}
			}

			out, err := stage.Run(ctx, state, report)
			if err != nil {
				failed.Store(true)
				failedAt.Store(int64(i))
				p.cfg.Logger().Error("stage failed", "index", i, "stage", stage.Name(), "error", err)
				return fmt.Errorf("%s: %w", stage.Name(), err)
			}

			state.add(out)
			events <- Event{
				Kind:       EventProgress,
				StageIndex: i,
				StageName:  stage.Name(),
				Message:    stage.Name() + " finished",
				Fraction:   1,
				Percent:    progress.update(i, 1),
				Output:     out,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		i := int(failedAt.Load())
		events <- Event{
			Kind:       EventError,
			StageIndex: i,
			StageName:  p.stages[i].Name(),
			Message:    err.Error(),
			Percent:    progress.percent(),
			Err:        err,
			State:      state,
		}
		return
	}

	events <- Event{
		Kind:       EventComplete,
		StageIndex: len(p.stages) - 1,
		StageName:  p.stages[len(p.stages)-1].Name(),
		Message:    "installation finished",
		Fraction:   1,
		Percent:    100,
		State:      state,
	}
}

// Run starts the pipeline, dispatches its events to l and returns the final
// state. l may be nil.
func (p *Pipeline) Run(ctx context.Context, l Listener) (*State, error) {
	var (
		state *State
		err   error
	)
	for e := range p.Start(ctx) {
		switch e.Kind {
		case EventProgress:
			if l != nil {
				l.OnProgress(e)
			}
		case EventError:
			state, err = e.State, e.Err
			if l != nil {
				l.OnError(e)
			}
		case EventComplete:
			state = e.State
			if l != nil {
				l.OnComplete(e)
			}
		}
	}
	return state, err
}

// Listener receives the events of [Pipeline.Run].
type Listener interface {
	OnProgress(Event)
	OnError(Event)
	OnComplete(Event)
}

// ListenerFuncs adapts functions to [Listener]. Nil functions are skipped.
type ListenerFuncs struct {
	Progress func(Event)
	Error    func(Event)
	Complete func(Event)
}

func (l ListenerFuncs) OnProgress(e Event) {
	if l.Progress != nil {
		l.Progress(e)
	}
}

func (l ListenerFuncs) OnError(e Event) {
	if l.Error != nil {
		l.Error(e)
	}
}

func (l ListenerFuncs) OnComplete(e Event) {
	if l.Complete != nil {
		l.Complete(e)
	}
}

// weightedProgress sums the weighted stage fractions.
type weightedProgress struct {
	weights []float64
	last    float64
}

func (w *weightedProgress) update(stage int, fraction float64) float64 {
	var base float64
	for _, weight := range w.weights[:stage] {
		base += weight
	}
	p := (base + w.weights[stage]*clampFraction(fraction)) * 100
	if p > 100 {
		p = 100
	}
	if p > w.last {
		w.last = p
	}
	return w.last
}

func (w *weightedProgress) percent() float64 {
	return w.last
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
