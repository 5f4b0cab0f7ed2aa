package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	blue   = "\x1b[34m"
	yellow = "\x1b[33m"
	red    = "\x1b[31m"
	green  = "\x1b[32m"
	reset  = "\x1b[0m"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	debugOn           = os.Getenv("LOG_DEBUG") != ""
)

// SetOutput redirects every subsequent log line. Tests use it to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetDebug toggles Debugf output.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debugOn = enabled
}

func prefix(level string) string {
	var color string
	switch strings.ToUpper(level) {
	case "DEBUG":
		color = blue
	case "INFO":
		color = green
	case "WARNING", "WARN":
		color = yellow
	case "ERROR", "ERR":
		color = red
	default:
		color = reset
	}
	return fmt.Sprintf("[%s%s%s] - %s - ", color, strings.ToUpper(level), reset, time.Now().Format("2006-01-02T15:04:05"))
}

func write(level, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s%s\n", prefix(level), msg)
}

func Debugf(format string, a ...interface{}) {
	mu.Lock()
	enabled := debugOn
	mu.Unlock()
	if !enabled {
		return
	}
	write("DEBUG", format, a...)
}

func Infof(format string, a ...interface{}) {
	write("INFO", format, a...)
}

func Warnf(format string, a ...interface{}) {
	write("WARNING", format, a...)
}

func Errorf(format string, a ...interface{}) {
	write("ERROR", format, a...)
}

func Fatalf(format string, a ...interface{}) {
	Errorf(format, a...)
	os.Exit(1)
}
