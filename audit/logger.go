package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config defines audit logging configuration
type Config struct {
	Enabled  bool                   `json:"enabled"`
	Source   string                 `json:"source"`  // hostname or instance name stamped on every event
	Type     ConfigType             `json:"type"`    // "file", "syslog"
	Options  map[string]interface{} `json:"options"` // Provider-specific options
	LogLevel string                 `json:"log_level,omitempty"`
}

type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Audit actions emitted by the vault.
const (
	ActionInitialized        = "VAULT_INITIALIZED"
	ActionUnlock             = "VAULT_UNLOCK"
	ActionAuthFailure        = "AUTH_FAILURE"
	ActionUnauthorizedAccess = "UNAUTHORIZED_ACCESS"
	ActionSecretRead         = "SECRET_READ"
	ActionSecretWrite        = "SECRET_WRITE"
	ActionAutoLock           = "VAULT_AUTO_LOCK"
	ActionInterrupted        = "REQUEST_INTERRUPTED"
	ActionInvalidRequest     = "INVALID_REQUEST"
	ActionShutdown           = "VAULT_SHUTDOWN"
	ActionTokenRejected      = "TOKEN_REJECTED"
)

// Logger interface for pluggable audit implementations
type Logger interface {
	Log(action string, success bool, metadata map[string]interface{}) error
	Query(options QueryOptions) (QueryResult, error)
	Close() error
}

// Event represents an audit log event
type Event struct {
	ID        string                 `json:"id"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Source    string                 `json:"source,omitempty"` // IP, hostname, etc.
}

// QueryOptions for filtering audit logs
type QueryOptions struct {
	Since        *time.Time
	Until        *time.Time
	Action       string
	Operation    string
	Success      *bool // nil = all, true = only success, false = only failures
	Limit        int
	Offset       int
	SecurityOnly bool // only unlock, denial and auto-lock events
}

// QueryResult contains the results of an audit query
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Filtered   int     `json:"filtered"`
	HasMore    bool    `json:"has_more"`
}

// NewLogger creates an appropriate logger based on configuration
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoOpLogger{}, nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return &NoOpLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// newEvent lifts the well-known keys out of metadata into event fields.
func newEvent(source, action string, success bool, metadata map[string]interface{}) Event {
	event := Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Success:   success,
		Source:    source,
	}

	rest := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		s, isString := v.(string)
		switch {
		case k == "request_id" && isString:
			event.RequestID = s
		case k == "user_id" && isString:
			event.UserID = s
		case k == "operation" && isString:
			event.Operation = s
		case k == "error" && isString:
			event.Error = s
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		event.Metadata = rest
	}
	return event
}

// IsSecurityCritical reports whether an action belongs to the session lifecycle or is a denial.
func IsSecurityCritical(action string) bool {
	switch action {
	case ActionUnlock, ActionAuthFailure, ActionUnauthorizedAccess, ActionAutoLock, ActionTokenRejected:
		return true
	}
	return false
}

// parseOptions converts map[string]interface{} to specific options struct
func parseOptions(options map[string]interface{}, target interface{}) error {
	if len(options) == 0 {
		return nil
	}

	// Convert to JSON and back to parse into struct
	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}

	return nil
}

func generateEventID() string {
	return uuid.NewString()
}
