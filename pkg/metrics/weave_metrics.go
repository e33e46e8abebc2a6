// Weaving run metrics
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"

	"leaflet-weaver/pkg/motion"
	"leaflet-weaver/pkg/scheduler"
	"leaflet-weaver/pkg/weave"
)

// WeaveMetrics holds the metrics of one weaving process.
type WeaveMetrics struct {
	QueueSteps       *Gauge
	SkippedBindings  *Gauge
	StepIndex        *Gauge
	StepsExecuted    *Counter
	StepDuration     *Histogram
	Cleanings        *Counter
	CleaningDuration *Histogram
	State            *Gauge

	Primitives   *Counter
	HeadPosition *Gauge
	ValveOpen    *Gauge

	ErrorsTotal  *Counter
	Goroutines   *Gauge
	MemoryHeap   *Gauge
	UptimeSecond *Gauge

	startTime time.Time
	registry  *Registry
}

// NewWeaveMetrics creates and registers all weaving metrics.
func NewWeaveMetrics() *WeaveMetrics {
	wm := &WeaveMetrics{
		QueueSteps: NewGauge("weaver_queue_steps",
			"Number of steps in the planned queue"),
		SkippedBindings: NewGauge("weaver_skipped_bindings",
			"Bindings dropped at plan time for missing samples"),
		StepIndex: NewGauge("weaver_step_index",
			"Index of the next step to execute"),
		StepsExecuted: NewCounter("weaver_steps_executed_total",
			"Steps executed, by pass"),
		StepDuration: NewHistogram("weaver_step_duration_seconds",
			"Time to emit one fiber", ExponentialBuckets(0.0001, 4, 8)),
		Cleanings: NewCounter("weaver_cleanings_total",
			"Completed cleaning routines"),
		CleaningDuration: NewHistogram("weaver_cleaning_duration_seconds",
			"Time spent in the cleaning routine", DefaultBuckets()),
		State: NewGauge("weaver_state",
			"Scheduler state (0=idle, 1=running, 2=cleaning, 3=done, 4=halted)"),
		Primitives: NewCounter("weaver_primitives_total",
			"Motion primitives emitted, by kind"),
		HeadPosition: NewGauge("weaver_head_position_mm",
			"Commanded head position"),
		ValveOpen: NewGauge("weaver_valve_open",
			"Deposition valve state (1=open, 0=closed)"),
		ErrorsTotal: NewCounter("weaver_errors_total",
			"Errors by type"),
		Goroutines: NewGauge("weaver_go_goroutines",
			"Number of active goroutines"),
		MemoryHeap: NewGauge("weaver_go_memory_heap_bytes",
			"Go heap memory in use"),
		UptimeSecond: NewGauge("weaver_uptime_seconds",
			"Seconds since the metrics were created"),
		startTime: time.Now(),
		registry:  NewRegistry(),
	}
	wm.registry.MustRegister(
		wm.QueueSteps, wm.SkippedBindings, wm.StepIndex, wm.StepsExecuted, wm.StepDuration,
		wm.Cleanings, wm.CleaningDuration, wm.State,
		wm.Primitives, wm.HeadPosition, wm.ValveOpen,
		wm.ErrorsTotal, wm.Goroutines, wm.MemoryHeap, wm.UptimeSecond,
	)
	return wm
}

// SetPlan records the queue length, the skipped bindings and the resume
// point.
func (wm *WeaveMetrics) SetPlan(steps, skipped, startAt int) {
	wm.QueueSteps.Set(nil, float64(steps))
	wm.SkippedBindings.Set(nil, float64(skipped))
	wm.StepIndex.Set(nil, float64(startAt))
}

// RecordError counts an error of the given type.
func (wm *WeaveMetrics) RecordError(kind string) {
	wm.ErrorsTotal.Inc(Labels{"type": kind})
}

// Observer returns scheduler callbacks that feed these metrics.
func (wm *WeaveMetrics) Observer() scheduler.Observer {
	return scheduler.Observer{
		OnStep: func(i int, step weave.Step, elapsed time.Duration) {
			wm.StepsExecuted.Inc(Labels{"pass": step.Pass.String()})
			wm.StepDuration.ObserveDuration(nil, elapsed)
			wm.StepIndex.Set(nil, float64(i+1))
		},
		OnCleaning: func(_ int, elapsed time.Duration) {
			wm.Cleanings.Inc(nil)
			wm.CleaningDuration.ObserveDuration(nil, elapsed)
		},
		OnState: func(s scheduler.State) {
			wm.State.Set(nil, float64(s))
			if s == scheduler.StateHalted {
				wm.RecordError("halt")
			}
		},
	}
}

// Emit tracks the commanded head position and valve state. It never fails,
// so WeaveMetrics can sit in a motion.Tee next to the real sink.
func (wm *WeaveMetrics) Emit(p motion.Primitive) error {
	wm.Primitives.Inc(Labels{"kind": p.Kind.String()})
	switch p.Kind {
	case motion.KindTravel:
		for _, m := range p.Moves {
			l := Labels{"axis": m.Axis.String()}
			if p.Relative {
				wm.HeadPosition.Add(l, m.Value)
			} else {
				wm.HeadPosition.Set(l, m.Value)
			}
		}
	case motion.KindActuator:
		v := 0.0
		if p.On {
			v = 1
		}
		wm.ValveOpen.Set(nil, v)
	}
	return nil
}

// UpdateSystemMetrics refreshes the Go runtime gauges.
func (wm *WeaveMetrics) UpdateSystemMetrics() {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	wm.Goroutines.Set(nil, float64(goruntime.NumGoroutine()))
	wm.MemoryHeap.Set(nil, float64(m.HeapAlloc))
	wm.UptimeSecond.Set(nil, time.Since(wm.startTime).Seconds())
}

// Gather returns all metrics in Prometheus text format.
func (wm *WeaveMetrics) Gather() string {
	wm.UpdateSystemMetrics()
	return wm.registry.Gather()
}

// Registry returns the internal registry.
func (wm *WeaveMetrics) Registry() *Registry { return wm.registry }
