// Package logger provides the plain key=value logging style used across
// the pipeline, a direct Go rendering of the structured logger.info(event,
// key=val) calls each worker used in the original implementation.
package logger

import (
	"fmt"
	"log"
	"strings"
)

func format(event string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(event)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

// Info logs an informational event with structured key/value pairs.
func Info(event string, kv ...interface{}) {
	log.Print("INFO " + format(event, kv))
}

// Warn logs a warning event with structured key/value pairs.
func Warn(event string, kv ...interface{}) {
	log.Print("WARN " + format(event, kv))
}

// Error logs an error event with structured key/value pairs.
func Error(event string, kv ...interface{}) {
	log.Print("ERROR " + format(event, kv))
}

// Debug logs a debug event with structured key/value pairs.
func Debug(event string, kv ...interface{}) {
	log.Print("DEBUG " + format(event, kv))
}
