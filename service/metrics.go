package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks counts and cumulative processing time for the
// operations the election exposes.
type MetricsCollector struct {
	mu sync.RWMutex

	registrationCount     int
	registrationTotalTime time.Duration

	submitCount     int
	submitTotalTime time.Duration

	sealCount     int
	sealTotalTime time.Duration
	blocksSealed  int
}

// OperationMetrics contains timing information for one operation kind.
type OperationMetrics struct {
	Count            int   `json:"count"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// MetricsReport provides the metrics for all operations.
type MetricsReport struct {
	Registration OperationMetrics `json:"registration"`
	Submit       OperationMetrics `json:"submit"`
	Seal         OperationMetrics `json:"seal"`
	BlocksSealed int              `json:"blocks_sealed"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

func (mc *MetricsCollector) RecordRegistration(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.registrationCount++
	mc.registrationTotalTime += duration
}

func (mc *MetricsCollector) RecordSubmit(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.submitCount++
	mc.submitTotalTime += duration
}

func (mc *MetricsCollector) RecordSeal(duration time.Duration, sealed bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.sealCount++
	mc.sealTotalTime += duration
	if sealed {
		mc.blocksSealed++
	}
}

func (mc *MetricsCollector) Report() MetricsReport {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsReport{
		Registration: OperationMetrics{
			Count:            mc.registrationCount,
			ProcessingTimeMs: mc.registrationTotalTime.Milliseconds(),
		},
		Submit: OperationMetrics{
			Count:            mc.submitCount,
			ProcessingTimeMs: mc.submitTotalTime.Milliseconds(),
		},
		Seal: OperationMetrics{
			Count:            mc.sealCount,
			ProcessingTimeMs: mc.sealTotalTime.Milliseconds(),
		},
		BlocksSealed: mc.blocksSealed,
	}
}

// Reset clears all metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.registrationCount = 0
	mc.registrationTotalTime = 0
	mc.submitCount = 0
	mc.submitTotalTime = 0
	mc.sealCount = 0
	mc.sealTotalTime = 0
	mc.blocksSealed = 0
}
