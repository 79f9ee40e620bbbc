package cmd

import (
	"log"
	"strings"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var logLevel = levelInfo

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logLevel = levelDebug
	case "warn":
		logLevel = levelWarn
	case "error":
		logLevel = levelError
	default:
		logLevel = levelInfo
	}
}

func logf(level int, prefix, format string, args ...any) {
	if level < logLevel {
		return
	}
	log.Printf(prefix+" "+format, args...)
}

func debugf(format string, args ...any) { logf(levelDebug, "[debug]", format, args...) }
func infof(format string, args ...any)  { logf(levelInfo, "[info]", format, args...) }
func warnf(format string, args ...any)  { logf(levelWarn, "[warn]", format, args...) }
