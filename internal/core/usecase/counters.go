package usecase

import "sync/atomic"

// Counters aggregates process-wide pipeline activity for the live stats
// endpoint. Safe for concurrent use.
type Counters struct {
	totalScans    atomic.Int64
	facesDetected atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) FrameScanned()        { c.totalScans.Add(1) }
func (c *Counters) FacesFound(n int)     { c.facesDetected.Add(int64(n)) }
func (c *Counters) TotalScans() int64    { return c.totalScans.Load() }
func (c *Counters) FacesDetected() int64 { return c.facesDetected.Load() }
