// Package obslog is the server-side logger, grounded on the teacher's
// pkg/utils/logger.go but constructed explicitly (no sync.Once singleton)
// per spec.md §9's "Global state" guidance — tests need independent
// instances, so NewLogger always returns a fresh *Logger.
package obslog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a Logger's destination and format.
type Options struct {
	// Dir is the directory the rotating log file lives under, e.g.
	// "<workspace>/.forgeref". Defaults to ".forgeref" if empty.
	Dir string
	// JSONMode mirrors the teacher's LEDIT_JSON_LOGS toggle.
	JSONMode bool
	// CorrelationID is attached to every log line and echoed back on
	// every tools/call response as data.correlationId.
	CorrelationID string
	// Quiet suppresses human-readable stdout echoing of warnings/errors;
	// the rotating file always receives every line regardless.
	Quiet bool
}

// Logger is a workspace logger: every line goes to a rotating file, and
// warnings/errors also echo to stdout/stderr in color unless Quiet.
type Logger struct {
	file          *lumberjack.Logger
	std           *log.Logger
	jsonMode      bool
	correlationID string
	quiet         bool
}

// NewLogger builds a Logger rooted at opts.Dir (".forgeref" by default),
// rotating at 15MB/3 backups/28 days/compressed — the teacher's policy.
func NewLogger(opts Options) *Logger {
	dir := opts.Dir
	if dir == "" {
		dir = ".forgeref"
	}
	lj := &lumberjack.Logger{
		Filename:   dir + "/server.log",
		MaxSize:    15,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	if v := os.Getenv("FORGEREF_JSON_LOGS"); v == "1" {
		opts.JSONMode = true
	}
	if cid := os.Getenv("FORGEREF_CORRELATION_ID"); cid != "" && opts.CorrelationID == "" {
		opts.CorrelationID = cid
	}
	return &Logger{
		file:          lj,
		std:           log.New(lj, "", log.LstdFlags),
		jsonMode:      opts.JSONMode,
		correlationID: opts.CorrelationID,
		quiet:         opts.Quiet,
	}
}

// Close flushes and closes the rotating log file.
func (l *Logger) Close() error { return l.file.Close() }

type jsonLine struct {
	Time          string `json:"time"`
	Level         string `json:"level"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (l *Logger) write(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.jsonMode {
		line, _ := json.Marshal(jsonLine{
			Time:          time.Now().Format(time.RFC3339),
			Level:         level,
			Message:       msg,
			CorrelationID: l.correlationID,
		})
		l.std.Println(string(line))
		return
	}
	if l.correlationID != "" {
		l.std.Printf("[%s] %s: %s", level, l.correlationID, msg)
		return
	}
	l.std.Printf("[%s] %s", level, msg)
}

// Debugf logs to the file only.
func (l *Logger) Debugf(format string, args ...any) { l.write("DEBUG", format, args...) }

// Infof logs to the file only.
func (l *Logger) Infof(format string, args ...any) { l.write("INFO", format, args...) }

// Warnf logs to the file and, unless Quiet, echoes a colored line to stderr.
func (l *Logger) Warnf(format string, args ...any) {
	l.write("WARN", format, args...)
	if !l.quiet {
		color.New(color.FgYellow).Fprintf(os.Stderr, "warning: "+format+"\n", args...)
	}
}

// Errorf logs to the file and, unless Quiet, echoes a colored line to stderr.
func (l *Logger) Errorf(format string, args ...any) {
	l.write("ERROR", format, args...)
	if !l.quiet {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: "+format+"\n", args...)
	}
}

// Successf echoes a colored success line to stdout (CLI surface only; not
// written to the rotating log, matching the teacher's separation between
// workspace-log events and user-facing interaction prints).
func (l *Logger) Successf(format string, args ...any) {
	color.New(color.FgGreen).Printf(format+"\n", args...)
}
