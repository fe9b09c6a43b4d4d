package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	logLevelNames = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}

	currentLevel = INFO
	sink         = &fileSink{}
	mu           sync.RWMutex
)

// fileSink mirrors every entry as a JSON line into a size-rotated file.
type fileSink struct {
	file         *os.File
	filePath     string
	maxSizeBytes int64
	maxAgeDays   int
	mu           sync.Mutex
}

type LogEntry struct {
	Level     string                 `json:"level"`
	Timestamp string                 `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// ParseLevel maps a config string ("debug", "warn", ...) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

func EnableFileLogging(filePath string, maxSizeMB, maxAgeDays int) error {
	if maxSizeMB <= 0 {
		maxSizeMB = 20
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.file != nil {
		sink.file.Close()
	}
	sink.file = file
	sink.filePath = filePath
	sink.maxSizeBytes = int64(maxSizeMB) * 1024 * 1024
	sink.maxAgeDays = maxAgeDays
	if err := sink.cleanup(); err != nil {
		log.Println("Failed to clean up old log files:", err)
	}
	return nil
}

func DisableFileLogging() {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.file != nil {
		sink.file.Close()
		sink.file = nil
		sink.filePath = ""
	}
}

func logMessage(level LogLevel, component string, message string, fields map[string]interface{}) {
	if level < GetLevel() {
		return
	}

	entry := LogEntry{
		Level:     logLevelNames[level],
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Component: component,
		Message:   message,
		Fields:    fields,
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	if data, err := json.Marshal(entry); err == nil {
		if err := sink.write(append(data, '\n')); err != nil {
			log.Println("Failed to write file log:", err)
		}
	}

	line := fmt.Sprintf("[%s] [%s]", entry.Timestamp, entry.Level)
	if component != "" {
		line += " " + component + ":"
	}
	line += " " + message
	if len(fields) > 0 {
		line += " " + formatFields(fields)
	}
	log.Println(line)

	if level == FATAL {
		os.Exit(1)
	}
}

func (s *fileSink) write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if info, err := s.file.Stat(); err == nil && s.maxSizeBytes > 0 && info.Size()+int64(len(line)) > s.maxSizeBytes {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	_, err := s.file.Write(line)
	return err
}

func (s *fileSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	backup := fmt.Sprintf("%s.%s", s.filePath, time.Now().UTC().Format("20060102-150405"))
	if err := os.Rename(s.filePath, backup); err != nil {
		return err
	}
	file, err := os.OpenFile(s.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.file = nil
		return err
	}
	s.file = file
	return s.cleanup()
}

// cleanup removes rotated siblings (tgrelay.log.20260101-120000) past maxAgeDays.
func (s *fileSink) cleanup() error {
	if s.maxAgeDays <= 0 || s.filePath == "" {
		return nil
	}
	dir := filepath.Dir(s.filePath)
	base := filepath.Base(s.filePath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -s.maxAgeDays)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base+".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func DebugC(component string, message string) {
	logMessage(DEBUG, component, message, nil)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func InfoC(component string, message string) {
	logMessage(INFO, component, message, nil)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func WarnC(component string, message string) {
	logMessage(WARN, component, message, nil)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func ErrorC(component string, message string) {
	logMessage(ERROR, component, message, nil)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}

func FatalCF(component string, message string, fields map[string]interface{}) {
	logMessage(FATAL, component, message, fields)
}
