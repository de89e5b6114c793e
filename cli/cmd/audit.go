package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/mayanks4367/zero-trust/audit"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	auditJsonOutput    bool
	auditSince         string
	auditUntil         string
	auditAction        string
	auditOperation     string
	auditSuccessFilter string
	auditLimit         int
	auditOffset        int
	auditFailuresOnly  bool
	auditSecurityOnly  bool
	auditDetails       bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and analyze audit logs",
	Long: `Query and analyze the vault audit trail.

Provides audit trail analysis including:
- Event filtering by time, action, operation and outcome
- Unlock, denial and auto-lock history
- Summary statistics and JSON export`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit logs with filters",
	Long: `Query audit logs with various filtering options.

Examples:
  # Everything, newest first
  ztv audit query

  # Failed unlocks in the last 24 hours
  ztv audit query --action AUTH_FAILURE --since "$(date -d '24 hours ago' -Iseconds)"

  # Denied reads
  ztv audit query --action UNAUTHORIZED_ACCESS --operation read`,
	RunE: runAuditQuery,
}

var auditFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Show failed operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		auditFailuresOnly = true
		return runAuditQuery(cmd, args)
	},
}

var auditSecurityCmd = &cobra.Command{
	Use:   "security",
	Short: "Show unlock, denial and auto-lock events",
	RunE: func(cmd *cobra.Command, args []string) error {
		auditSecurityOnly = true
		return runAuditQuery(cmd, args)
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		auditJsonOutput = true
		return runAuditQuery(cmd, args)
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit statistics",
	RunE:  runAuditStats,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.AddCommand(auditQueryCmd)
	auditCmd.AddCommand(auditFailuresCmd)
	auditCmd.AddCommand(auditSecurityCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditStatsCmd)

	auditCmd.PersistentFlags().BoolVar(&auditJsonOutput, "json", false, "Output in JSON format")
	auditCmd.PersistentFlags().StringVar(&auditSince, "since", "", "Show events since this time (RFC3339 format)")
	auditCmd.PersistentFlags().StringVar(&auditUntil, "until", "", "Show events until this time (RFC3339 format)")
	auditCmd.PersistentFlags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to return")
	auditCmd.PersistentFlags().IntVar(&auditOffset, "offset", 0, "Number of events to skip")
	auditCmd.PersistentFlags().BoolVar(&auditDetails, "details", false, "Show detailed event information")

	auditQueryCmd.Flags().StringVar(&auditAction, "action", "", "Filter by specific action")
	auditQueryCmd.Flags().StringVar(&auditOperation, "operation", "", "Filter by operation (unlock, read, write, control)")
	auditQueryCmd.Flags().StringVar(&auditSuccessFilter, "success", "", "Filter by success status (true/false)")
	auditQueryCmd.Flags().BoolVar(&auditFailuresOnly, "failures-only", false, "Show only failed events")
	auditQueryCmd.Flags().BoolVar(&auditSecurityOnly, "security-only", false, "Show only unlock, denial and auto-lock events")
}

func openAuditLog() (audit.Logger, error) {
	if !viper.GetBool("audit.enabled") {
		// the trail can be read even when this invocation does not write to it
		viper.Set("audit.enabled", true)
	}
	logger, err := createAuditLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return logger, nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	options, err := buildQueryOptions()
	if err != nil {
		return err
	}

	auditLog, err := openAuditLog()
	if err != nil {
		return err
	}
	defer auditLog.Close()

	result, err := auditLog.Query(options)
	if err != nil {
		return fmt.Errorf("failed to query audit log: %w", err)
	}

	if auditJsonOutput {
		return writeJSON(os.Stdout, result)
	}

	if err = displayAuditEvents(os.Stdout, result.Events); err != nil {
		return err
	}
	if result.HasMore {
		fmt.Printf("\nShowing %d of %d matching events (use --offset to page)\n", len(result.Events), result.Filtered)
	}
	return nil
}

func buildQueryOptions() (audit.QueryOptions, error) {
	options := audit.QueryOptions{
		Limit:        auditLimit,
		Offset:       auditOffset,
		Action:       auditAction,
		Operation:    auditOperation,
		SecurityOnly: auditSecurityOnly,
	}

	if auditSince != "" {
		parsedTime, err := time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return options, fmt.Errorf("invalid since time format: %w", err)
		}
		options.Since = &parsedTime
	}

	if auditUntil != "" {
		parsedTime, err := time.Parse(time.RFC3339, auditUntil)
		if err != nil {
			return options, fmt.Errorf("invalid until time format: %w", err)
		}
		options.Until = &parsedTime
	}

	if auditSuccessFilter != "" {
		success, err := strconv.ParseBool(auditSuccessFilter)
		if err != nil {
			return options, fmt.Errorf("invalid success filter format: %w", err)
		}
		options.Success = &success
	}

	if auditFailuresOnly {
		falseVal := false
		options.Success = &falseVal
	}

	return options, nil
}

func displayAuditEvents(w io.Writer, events []audit.Event) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "No audit events found.")
		return nil
	}

	if auditDetails {
		for _, event := range events {
			tbl := table.New("FIELD", "VALUE").WithWriter(w)
			tbl.AddRow("Event ID", event.ID)
			tbl.AddRow("Timestamp", event.Timestamp.Format("2006-01-02 15:04:05"))
			tbl.AddRow("Action", event.Action)
			tbl.AddRow("Status", statusLabel(event.Success))
			if event.Operation != "" {
				tbl.AddRow("Operation", event.Operation)
			}
			if event.Error != "" {
				tbl.AddRow("Error", event.Error)
			}
			if event.RequestID != "" {
				tbl.AddRow("Request ID", event.RequestID)
			}
			if event.UserID != "" {
				tbl.AddRow("User ID", event.UserID)
			}
			if event.Source != "" {
				tbl.AddRow("Source", event.Source)
			}
			for _, k := range sortedKeys(event.Metadata) {
				tbl.AddRow(k, fmt.Sprintf("%v", event.Metadata[k]))
			}
			tbl.Print()
			fmt.Fprintln(w)
		}
		return nil
	}

	tbl := table.New("TIMESTAMP", "ACTION", "OPERATION", "STATUS", "ERROR").WithWriter(w)
	for _, event := range events {
		errorMsg := event.Error
		if len(errorMsg) > 40 {
			errorMsg = errorMsg[:40] + "..."
		}
		tbl.AddRow(
			event.Timestamp.Local().Format("2006-01-02 15:04:05"),
			event.Action,
			event.Operation,
			statusLabel(event.Success),
			errorMsg,
		)
	}
	tbl.Print()
	return nil
}

func statusLabel(success bool) string {
	if success {
		return "SUCCESS"
	}
	return "FAILED"
}

// AuditStats summarizes the audit trail
type AuditStats struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	TotalEvents      int            `json:"total_events"`
	SuccessfulEvents int            `json:"successful_events"`
	FailedEvents     int            `json:"failed_events"`
	SuccessRate      float64        `json:"success_rate"`
	ActionBreakdown  map[string]int `json:"action_breakdown"`
	Unlocks          int            `json:"unlocks"`
	FailedUnlocks    int            `json:"failed_unlocks"`
	DeniedAccess     int            `json:"denied_access"`
	AutoLocks        int            `json:"auto_locks"`
	FirstEvent       *time.Time     `json:"first_event,omitempty"`
	LastEvent        *time.Time     `json:"last_event,omitempty"`
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	options, err := buildQueryOptions()
	if err != nil {
		return err
	}
	// statistics cover the whole window
	options.Limit = 0
	options.Offset = 0

	auditLog, err := openAuditLog()
	if err != nil {
		return err
	}
	defer auditLog.Close()

	result, err := auditLog.Query(options)
	if err != nil {
		return fmt.Errorf("failed to query audit log: %w", err)
	}

	stats := calculateAuditStats(result.Events)
	if auditJsonOutput {
		return writeJSON(os.Stdout, stats)
	}
	displayAuditStats(os.Stdout, stats)
	return nil
}

func calculateAuditStats(events []audit.Event) AuditStats {
	stats := AuditStats{
		GeneratedAt:     time.Now().UTC(),
		ActionBreakdown: make(map[string]int),
	}

	for i := range events {
		event := events[i]
		stats.TotalEvents++
		if event.Success {
			stats.SuccessfulEvents++
		} else {
			stats.FailedEvents++
		}
		stats.ActionBreakdown[event.Action]++

		switch event.Action {
		case audit.ActionUnlock:
			stats.Unlocks++
		case audit.ActionAuthFailure:
			stats.FailedUnlocks++
		case audit.ActionUnauthorizedAccess:
			stats.DeniedAccess++
		case audit.ActionAutoLock:
			stats.AutoLocks++
		}

		if stats.FirstEvent == nil || event.Timestamp.Before(*stats.FirstEvent) {
			ts := event.Timestamp
			stats.FirstEvent = &ts
		}
		if stats.LastEvent == nil || event.Timestamp.After(*stats.LastEvent) {
			ts := event.Timestamp
			stats.LastEvent = &ts
		}
	}

	if stats.TotalEvents > 0 {
		stats.SuccessRate = float64(stats.SuccessfulEvents) / float64(stats.TotalEvents) * 100
	}
	return stats
}

func displayAuditStats(w io.Writer, stats AuditStats) {
	fmt.Fprintln(w, "Audit Statistics")
	fmt.Fprintln(w, "================")

	summary := table.New("METRIC", "VALUE").WithWriter(w)
	summary.AddRow("Total events", stats.TotalEvents)
	summary.AddRow("Successful", stats.SuccessfulEvents)
	summary.AddRow("Failed", stats.FailedEvents)
	summary.AddRow("Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate))
	summary.AddRow("Unlocks", stats.Unlocks)
	summary.AddRow("Failed unlocks", stats.FailedUnlocks)
	summary.AddRow("Denied access", stats.DeniedAccess)
	summary.AddRow("Auto-locks", stats.AutoLocks)
	if stats.FirstEvent != nil {
		summary.AddRow("First event", stats.FirstEvent.Local().Format(time.RFC3339))
		summary.AddRow("Last event", stats.LastEvent.Local().Format(time.RFC3339))
	}
	summary.Print()

	if len(stats.ActionBreakdown) == 0 {
		return
	}
	fmt.Fprintln(w)
	actions := table.New("ACTION", "COUNT").WithWriter(w)
	for _, ac := range topActions(stats.ActionBreakdown) {
		actions.AddRow(ac.Action, ac.Count)
	}
	actions.Print()
}

type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

func topActions(actionCounts map[string]int) []ActionCount {
	counts := make([]ActionCount, 0, len(actionCounts))
	for action, count := range actionCounts {
		counts = append(counts, ActionCount{Action: action, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count == counts[j].Count {
			return counts[i].Action < counts[j].Action
		}
		return counts[i].Count > counts[j].Count
	})
	return counts
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
