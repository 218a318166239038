package metrics

import "time"

// PipelineObserver feeds per-frame pipeline telemetry into the prometheus
// series. Satisfies the usecase observer port.
type PipelineObserver struct {
	Metrics *HTTPServerMetrics
	Service string
	Source  string
}

func (p *PipelineObserver) FrameProcessed(detected int) {
	p.Metrics.RecordFrame(p.Service, p.Source, detected)
}

func (p *PipelineObserver) InferenceDone(stage string, elapsed time.Duration) {
	p.Metrics.ObserveInference(p.Service, stage, elapsed)
}
