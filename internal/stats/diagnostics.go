package stats

import "strconv"

// DiagnosticSink receives intermediate per-pair tables from the reducers so
// a run can be inspected offline. Reducers never depend on it; a nil sink
// disables emission entirely.
type DiagnosticSink interface {
	Table(name string, header []string, rows [][]string) error
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatIntPtr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
