package status

import (
	"sync"

	"go.uber.org/zap"
)

type Progress struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

type Stage struct {
	Title    string    `json:"title"`
	Progress *Progress `json:"progress,omitempty"`
}

// Reporter is a stack of nested stages describing what the sync task is doing.
// Only the sync task mutates it; readers receive copies.
type Reporter struct {
	logger *zap.Logger
	stages []Stage
	subs   map[int]chan []Stage
	nextID int
	mu     sync.RWMutex
}

func NewReporter(logger *zap.Logger) *Reporter {
	return &Reporter{
		logger: logger,
		subs:   make(map[int]chan []Stage),
	}
}

func (r *Reporter) PushStage(title string) {
	r.push(Stage{Title: title})
}

func (r *Reporter) PushProgressStage(title string, max int) {
	r.push(Stage{Title: title, Progress: &Progress{Max: max}})
}

func (r *Reporter) push(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stages = append(r.stages, stage)
	r.publishLocked()
}

func (r *Reporter) PopStage() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.stages) == 0 {
		r.logger.Warn("pop on empty status stack")
		return
	}
	r.stages = r.stages[:len(r.stages)-1]
	r.publishLocked()
}

// topProgressLocked returns the innermost stage's progress, logging when there is none. Callers hold mu.
func (r *Reporter) topProgressLocked(op string) *Progress {
	if len(r.stages) == 0 {
		r.logger.Warn("progress update without a stage", zap.String("op", op))
		return nil
	}
	top := &r.stages[len(r.stages)-1]
	if top.Progress == nil {
		r.logger.Warn("progress update on a stage without progress",
			zap.String("op", op),
			zap.String("stage", top.Title),
		)
		return nil
	}
	return top.Progress
}

func (r *Reporter) SetProgressMax(max int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.topProgressLocked("set_max")
	if p == nil {
		return
	}
	p.Max = max
	if p.Current > max {
		p.Current = max
	}
	r.publishLocked()
}

// IncrementProgress advances the innermost stage, never past its max.
func (r *Reporter) IncrementProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.topProgressLocked("increment")
	if p == nil {
		return
	}
	if p.Current < p.Max {
		p.Current++
	}
	r.publishLocked()
}

func (r *Reporter) IsActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages) > 0
}

// Stages returns a copy of the stack, outermost first.
func (r *Reporter) Stages() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Reporter) snapshotLocked() []Stage {
	out := make([]Stage, len(r.stages))
	for i, s := range r.stages {
		out[i] = Stage{Title: s.Title}
		if s.Progress != nil {
			p := *s.Progress
			out[i].Progress = &p
		}
	}
	return out
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow readers only see the latest snapshot. Call cancel to unsubscribe.
func (r *Reporter) Subscribe() (<-chan []Stage, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	ch := make(chan []Stage, 1)
	r.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (r *Reporter) publishLocked() {
	if len(r.subs) == 0 {
		return
	}
	snapshot := r.snapshotLocked()
	for _, ch := range r.subs {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
