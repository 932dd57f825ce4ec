// Package util provides logging helpers and virtual serial management for local simulation.
package util

import (
	"fmt"
	"log"
	"os"
	"time"
)

// SetupLogger routes the standard logger to stdout without its own timestamp;
// the level helpers below stamp every line themselves.
func SetupLogger() {
	log.SetOutput(os.Stdout)
	log.SetFlags(0)
}

// Info prints general system information messages with timestamp.
func Info(msg string, args ...any) {
	log.Printf("[INFO] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Warn prints recoverable faults with timestamp.
func Warn(msg string, args ...any) {
	log.Printf("[WARN] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Error prints error messages with timestamp.
func Error(msg string, args ...any) {
	log.Printf("[ERROR] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}
