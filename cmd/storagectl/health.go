package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
)

// errUnhealthy makes the process exit non-zero without printing anything extra.
var errUnhealthy = errors.New("one or more checks are unhealthy")

type healthOptions struct {
	jsonOutput bool
	check      string
	tag        string
	timeout    time.Duration
}

func newHealthCmd(rootFlags *rootFlags, load appLoader) *cobra.Command {
	opts := &healthOptions{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run the registered health checks once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, rootFlags, opts, load)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&opts.check, "check", "", "Run only the named check")
	cmd.Flags().StringVar(&opts.tag, "tag", "", "Run only checks carrying this tag")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout for the run")

	return cmd
}

func runHealth(cmd *cobra.Command, rootFlags *rootFlags, opts *healthOptions, load appLoader) error {
	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	app, err := load(ctx, newLogger(cmd, rootFlags))
	if err != nil {
		return err
	}
	defer app.Close()

	var report *health.Report
	if opts.check != "" {
		entry, err := app.HealthService.CheckOne(ctx, opts.check)
		if err != nil {
			return err
		}
		report = health.NewReport(map[string]health.ReportEntry{opts.check: *entry}, entry.Duration)
	} else {
		var predicate func(health.Registration) bool
		if opts.tag != "" {
			predicate = func(r health.Registration) bool { return r.HasTag(opts.tag) }
		}
		report, err = app.HealthService.CheckHealth(ctx, predicate)
		if err != nil {
			return err
		}
	}

	if opts.jsonOutput {
		err = renderHealthJSON(cmd, report)
	} else {
		err = renderHealthTable(cmd, report)
	}
	if err != nil {
		return err
	}

	if report.Status == health.StatusUnhealthy {
		return errUnhealthy
	}
	return nil
}

func sortedNames(report *health.Report) []string {
	names := make([]string, 0, len(report.Entries))
	for name := range report.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func renderHealthTable(cmd *cobra.Command, report *health.Report) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "CHECK\tSTATUS\tDURATION\tDESCRIPTION")
	for _, name := range sortedNames(report) {
		e := report.Entries[name]
		desc := e.Description
		if e.Cause != nil {
			desc = fmt.Sprintf("%s (%v)", desc, e.Cause)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", name, e.Status, e.Duration.Round(time.Millisecond), desc)
	}
	fmt.Fprintf(writer, "\nOVERALL\t%s\t%s\t%s\n", report.Status, report.TotalDuration.Round(time.Millisecond),
		fmt.Sprintf("%d check(s)", len(report.Entries)))

	return writer.Flush()
}

type healthJSONEntry struct {
	Status      health.Status `json:"status"`
	Description string        `json:"description,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    string        `json:"duration"`
	Tags        []string      `json:"tags,omitempty"`
}

type healthJSONPayload struct {
	Status        health.Status              `json:"status"`
	TotalDuration string                     `json:"total_duration"`
	Checks        map[string]healthJSONEntry `json:"checks"`
}

func renderHealthJSON(cmd *cobra.Command, report *health.Report) error {
	payload := healthJSONPayload{
		Status:        report.Status,
		TotalDuration: report.TotalDuration.String(),
		Checks:        make(map[string]healthJSONEntry, len(report.Entries)),
	}
	for name, e := range report.Entries {
		entry := healthJSONEntry{
			Status:      e.Status,
			Description: e.Description,
			Duration:    e.Duration.String(),
			Tags:        e.Tags,
		}
		if e.Cause != nil {
			entry.Error = strings.TrimSpace(e.Cause.Error())
		}
		payload.Checks[name] = entry
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
