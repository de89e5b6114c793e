package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mayanks4367/zero-trust/internal/misc"
)

// Ensure FileLogger implements Logger interface
var _ Logger = (*FileLogger)(nil)

type FileLogger struct {
	file       *os.File
	size       int64
	maxBytes   int64
	mu         sync.RWMutex
	config     *Config
	eventCache []Event // Recent events cache for faster queries
	cacheSize  int
	fileOpts   FileOptions
}

type FileOptions struct {
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size,omitempty"`    // Max size in MB before rotation
	MaxBackups int    `json:"max_backups,omitempty"` // Max rotated files kept
	MaxAge     int    `json:"max_age,omitempty"`     // Max age of rotated files in days
}

// NewFileLogger creates a new file-based audit logger writing JSON lines.
func NewFileLogger(config *Config) (*FileLogger, error) {
	var fileOpts FileOptions
	if err := parseOptions(config.Options, &fileOpts); err != nil {
		return nil, fmt.Errorf("invalid file logger options: %w", err)
	}

	if fileOpts.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for file logger")
	}

	if fileOpts.MaxSize == 0 {
		fileOpts.MaxSize = 100 // 100MB default
	}
	if fileOpts.MaxBackups == 0 {
		fileOpts.MaxBackups = 5
	}
	if fileOpts.MaxAge == 0 {
		fileOpts.MaxAge = 30 // 30 days
	}

	if err := os.MkdirAll(filepath.Dir(fileOpts.FilePath), misc.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		config:     config,
		fileOpts:   fileOpts,
		maxBytes:   int64(fileOpts.MaxSize) * 1024 * 1024,
		eventCache: make([]Event, 0),
		cacheSize:  1000,
	}
	if err := logger.ensureFileOpen(); err != nil {
		return nil, err
	}

	return logger, nil
}

// Log implements the Logger interface
func (fl *FileLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	return fl.writeEvent(newEvent(fl.config.Source, action, success, metadata))
}

// writeEvent writes an event to the log file in JSONL format and updates cache
func (fl *FileLogger) writeEvent(event Event) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if err := fl.ensureFileOpen(); err != nil {
		return err
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}
	line := append(eventJSON, '\n')

	if fl.maxBytes > 0 && fl.size > 0 && fl.size+int64(len(line)) > fl.maxBytes {
		if err = fl.rotate(); err != nil {
			return err
		}
	}

	n, err := fl.file.Write(line)
	fl.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	// Flush to ensure it's written
	if err = fl.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	fl.updateCache(event)

	return nil
}

// rotate shifts audit.log.N to audit.log.N+1, moves the live file to
// audit.log.1 and reopens an empty live file. Callers hold fl.mu.
func (fl *FileLogger) rotate() error {
	path := fl.fileOpts.FilePath

	if err := fl.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}
	fl.file = nil

	for i := fl.fileOpts.MaxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(from); err == nil {
			if err = os.Rename(from, fmt.Sprintf("%s.%d", path, i+1)); err != nil {
				return fmt.Errorf("failed to rotate %s: %w", from, err)
			}
		}
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	fl.pruneBackups()

	return fl.ensureFileOpen()
}

// pruneBackups removes rotated files beyond MaxBackups or older than MaxAge.
func (fl *FileLogger) pruneBackups() {
	matches, err := filepath.Glob(fl.fileOpts.FilePath + ".*")
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -fl.fileOpts.MaxAge)
	for _, match := range matches {
		var idx int
		if _, err = fmt.Sscanf(strings.TrimPrefix(match, fl.fileOpts.FilePath+"."), "%d", &idx); err != nil {
			continue
		}
		info, statErr := os.Stat(match)
		if idx > fl.fileOpts.MaxBackups || (statErr == nil && info.ModTime().Before(cutoff)) {
			_ = os.Remove(match)
		}
	}
}

// updateCache adds event to cache and maintains size limit
func (fl *FileLogger) updateCache(event Event) {
	fl.eventCache = append(fl.eventCache, event)

	if len(fl.eventCache) > fl.cacheSize {
		// Remove oldest events, keep newest
		fl.eventCache = fl.eventCache[len(fl.eventCache)-fl.cacheSize:]
	}
}

// Query implements the Logger interface
func (fl *FileLogger) Query(options QueryOptions) (QueryResult, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	if fl.canUseCacheForQuery(options) {
		return fl.queryFromCache(options), nil
	}

	return fl.queryFromFile(options)
}

// canUseCacheForQuery determines if the cache can satisfy the query
func (fl *FileLogger) canUseCacheForQuery(options QueryOptions) bool {
	if len(fl.eventCache) == 0 {
		return false
	}

	// If no time constraints, cache might not have all data
	if options.Since == nil {
		return false
	}

	oldestCached := fl.eventCache[0].Timestamp
	return !options.Since.Before(oldestCached)
}

// queryFromCache queries events from the in-memory cache
func (fl *FileLogger) queryFromCache(options QueryOptions) QueryResult {
	var filtered []Event

	for _, event := range fl.eventCache {
		if matchesFilter(event, options) {
			filtered = append(filtered, event)
		}
	}

	return paginate(filtered, len(fl.eventCache), options)
}

// queryFromFile queries events from the live and rotated audit log files
func (fl *FileLogger) queryFromFile(options QueryOptions) (QueryResult, error) {
	files, err := fl.getAuditLogFiles()
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to get audit log files: %w", err)
	}

	var allEvents []Event
	totalCount := 0

	for _, filePath := range files {
		events, count, err := readEventsFromFile(filePath, options)
		if err != nil {
			return QueryResult{}, fmt.Errorf("failed to read events from %s: %w", filePath, err)
		}
		allEvents = append(allEvents, events...)
		totalCount += count
	}

	return paginate(allEvents, totalCount, options), nil
}

// paginate sorts newest first and applies offset and limit
func paginate(events []Event, totalCount int, options QueryOptions) QueryResult {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	start := options.Offset
	if start > len(events) {
		start = len(events)
	}

	end := len(events)
	if options.Limit > 0 {
		end = start + options.Limit
		if end > len(events) {
			end = len(events)
		}
	}

	return QueryResult{
		Events:     events[start:end],
		TotalCount: totalCount,
		Filtered:   len(events),
		HasMore:    end < len(events),
	}
}

// getAuditLogFiles returns the live audit log followed by its rotated siblings
func (fl *FileLogger) getAuditLogFiles() ([]string, error) {
	path := fl.fileOpts.FilePath
	files := []string{path}

	// Pattern: audit.log.1, audit.log.2, etc.
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return files, nil
	}
	sort.Strings(matches)

	return append(files, matches...), nil
}

// readEventsFromFile reads and filters events from a specific file
func readEventsFromFile(filePath string, options QueryOptions) ([]Event, int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open audit log file: %w", err)
	}
	defer file.Close()

	var events []Event
	totalCount := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		totalCount++

		var event Event
		if err = json.Unmarshal([]byte(line), &event); err != nil {
			// skip corrupt lines
			continue
		}

		if matchesFilter(event, options) {
			events = append(events, event)
		}
	}

	if err = scanner.Err(); err != nil {
		return events, totalCount, fmt.Errorf("error reading audit log file: %w", err)
	}

	return events, totalCount, nil
}

// matchesFilter checks if an event matches the query filters
func matchesFilter(event Event, options QueryOptions) bool {
	if options.Since != nil && event.Timestamp.Before(*options.Since) {
		return false
	}
	if options.Until != nil && event.Timestamp.After(*options.Until) {
		return false
	}

	if options.Action != "" && !strings.EqualFold(event.Action, options.Action) {
		return false
	}

	if options.Operation != "" && event.Operation != options.Operation {
		return false
	}

	if options.Success != nil && event.Success != *options.Success {
		return false
	}

	if options.SecurityOnly && !IsSecurityCritical(event.Action) {
		return false
	}

	return true
}

// Close implements the Logger interface
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file != nil {
		err := fl.file.Close()
		fl.file = nil
		return err
	}
	return nil
}

func (fl *FileLogger) ensureFileOpen() error {
	if fl.file != nil {
		return nil
	}

	file, err := os.OpenFile(fl.fileOpts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, misc.FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log: %w", err)
	}

	fl.file = file
	fl.size = info.Size()
	return nil
}
