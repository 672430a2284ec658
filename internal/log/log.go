package log

import (
	"fmt"
	stdlog "log"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

var (
	mu       sync.Mutex
	logger   *stdlog.Logger
	minLevel = LevelInfo
)

func ensureLogger() {
	if logger == nil {
		logger = stdlog.New(os.Stderr, "", 0)
	}
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects log output; used by tests.
func SetOutput(l *stdlog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func Debug(msg string, kv ...any) { emit(LevelDebug, msg, kv...) }

func Info(msg string, kv ...any) { emit(LevelInfo, msg, kv...) }

func Warn(msg string, kv ...any) { emit(LevelWarn, msg, kv...) }

// Error logs msg with err prepended to the key-value list.
func Error(msg string, err error, kv ...any) {
	emit(LevelError, msg, append([]any{"err", err}, kv...)...)
}

// emit writes one line:
//
//	2025-01-01T00:00:00Z [LEVEL] msg key=value ...
func emit(level Level, msg string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()
	ensureLogger()
	if level < minLevel {
		return
	}

	line := time.Now().Format(time.RFC3339Nano) + " [" + level.String() + "] " + msg
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		line += " " + key + "=" + fmt.Sprint(kv[i+1])
	}
	// An odd trailing element is dropped.

	logger.Println(line)
}
