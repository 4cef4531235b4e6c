// Package internal contains internal implementation details.
package internal

import "github.com/bassosimone/pktdelay"

// NullLogger is a [pktdelay.Logger] that does not emit logs.
type NullLogger struct{}

// Debug implements pktdelay.Logger
func (nl *NullLogger) Debug(message string) {
	// nothing
}

// Debugf implements pktdelay.Logger
func (nl *NullLogger) Debugf(format string, v ...any) {
	// nothing
}

// Info implements pktdelay.Logger
func (nl *NullLogger) Info(message string) {
	// nothing
}

// Infof implements pktdelay.Logger
func (nl *NullLogger) Infof(format string, v ...any) {
	// nothing
}

// Warn implements pktdelay.Logger
func (nl *NullLogger) Warn(message string) {
	// nothing
}

// Warnf implements pktdelay.Logger
func (nl *NullLogger) Warnf(format string, v ...any) {
	// nothing
}

var _ pktdelay.Logger = &NullLogger{}
