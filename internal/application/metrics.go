package application

import "github.com/example/field-attendance/internal/window"

// MetricsRecorder receives domain events worth counting.
type MetricsRecorder interface {
	MarkingRecorded(classification window.Classification)
	MarkingRejected(reason string)
	WindowUpdated(scope string)
	HistoryServed(expectedDays int, attendanceRate float64)
}

type noopMetrics struct{}

func (noopMetrics) MarkingRecorded(window.Classification) {}
func (noopMetrics) MarkingRejected(string)                {}
func (noopMetrics) WindowUpdated(string)                  {}
func (noopMetrics) HistoryServed(int, float64)            {}

func defaultMetrics(recorder MetricsRecorder) MetricsRecorder {
	if recorder == nil {
		return noopMetrics{}
	}
	return recorder
}
