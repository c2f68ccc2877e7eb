package iisexpress

import (
	"strconv"
	"strings"

	"github.com/smazurov/devbooster/internal/metrics"
)

// ReadyMarker is printed by IIS Express once it accepts requests.
const ReadyMarker = "IIS Express is running."

const statusPrefix = "with HTTP status "

// ParseLogLevel extracts a log level from IIS Express console output.
// Request completion lines are leveled by status code, request start lines
// are debug, and registration failures are errors.
func ParseLogLevel(line string) (level, msg string) {
	if status, ok := ParseRequestStatus(line); ok {
		switch {
		case status >= 500:
			return "error", line
		case status >= 400:
			return "warning", line
		default:
			return "info", line
		}
	}

	switch {
	case strings.HasPrefix(line, "Request started:"):
		return "debug", line
	case strings.HasPrefix(line, "Failed"), strings.Contains(line, "Error description:"):
		return "error", line
	}
	return "info", line
}

// ParseRequestStatus returns the HTTP status of a "Request ended" line, such
// as `Request ended: "http://localhost:6229/" with HTTP status 404.0`.
func ParseRequestStatus(line string) (int, bool) {
	if !strings.HasPrefix(line, "Request ended:") {
		return 0, false
	}
	idx := strings.LastIndex(line, statusPrefix)
	if idx == -1 {
		return 0, false
	}
	code := line[idx+len(statusPrefix):]
	if dot := strings.IndexByte(code, '.'); dot != -1 {
		code = code[:dot]
	}
	status, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return 0, false
	}
	return status, true
}

// ObserveLine counts request lines in metrics and returns the line's level.
// It satisfies process.LogParser.
func ObserveLine(line string) (level, msg string) {
	if status, ok := ParseRequestStatus(line); ok {
		metrics.RecordRequest(strconv.Itoa(status/100) + "xx")
	}
	return ParseLogLevel(line)
}

// IsReady reports whether line is the ready marker.
func IsReady(line, marker string) bool {
	if marker == "" {
		marker = ReadyMarker
	}
	return strings.Contains(line, marker)
}
