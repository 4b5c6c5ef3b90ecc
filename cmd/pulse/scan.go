package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

var scanFlags struct {
	org      string
	group    string
	hostname string
	ip       string
	limit    int
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a rule group against this host now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		exec, err := a.executor(ctx, scanFlags.org)
		if err != nil {
			return err
		}
		out, err := exec.RunForGroup(ctx, scanFlags.group, scanFlags.hostname, scanFlags.ip, "cli")
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(out)
		}
		printScan(out.Scan, out.Report)
		return nil
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a scan job for a rule group",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		group, err := a.store.Groups().GetGroup(ctx, scanFlags.org, scanFlags.group)
		if err != nil {
			return err
		}
		active, err := a.store.Jobs().CountActive(ctx, group.ID)
		if err != nil {
			return err
		}
		if active >= a.cfg.Scheduler.MaxConcurrent {
			return fmt.Errorf("group %s already has %d active job(s), cap is %d", group.ID, active, a.cfg.Scheduler.MaxConcurrent)
		}
		hostname := scanFlags.hostname
		if hostname == "" {
			hostname = group.DefaultHostname
		}
		job := &jobs.Job{
			ID:             uuid.NewString(),
			OrganizationID: group.OrganizationID,
			GroupID:        group.ID,
			Hostname:       hostname,
			TriggeredBy:    "cli",
			Status:         jobs.StatusPending,
			CreatedAt:      a.clock.Now().UTC(),
		}
		if err := a.store.Jobs().Enqueue(ctx, job); err != nil {
			return err
		}
		a.recordManual(ctx, job.OrganizationID, audit.ActionJobRequested, "scan_job", job.ID, "queued from cli")
		if outputJSON {
			return printJSON(job)
		}
		fmt.Printf("Queued job %s for group %s\n", job.ID, group.ID)
		return nil
	},
}

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Inspect stored scans",
}

var listScansCmd = &cobra.Command{
	Use:   "list",
	Short: "List the latest scans of an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.Scans().Latest(ctx, scanFlags.org, scanFlags.limit)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(list)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tHOST\tGROUP\tSTATUS\tSCORE\tSEVERITY\tCOMPLETED")
		for _, s := range list {
			completed := "-"
			if s.CompletedAt != nil {
				completed = s.CompletedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
				s.ID, s.Hostname, s.GroupID, s.Status, s.ComplianceScore, s.Severity, completed)
		}
		return tw.Flush()
	},
}

var showScanCmd = &cobra.Command{
	Use:   "show [scan-id]",
	Short: "Show a scan with its results and report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		id := domain.ScanID(args[0])
		repo := a.store.Scans()
		s, err := repo.Get(ctx, scanFlags.org, id)
		if err != nil {
			return err
		}
		results, err := repo.Results(ctx, scanFlags.org, id)
		if err != nil {
			return err
		}
		rep, err := repo.ReportFor(ctx, scanFlags.org, id)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(domain.ReportDocument{Report: rep, Scan: s, Results: results})
		}
		printScan(s, rep)
		for _, r := range results {
			mark := "FAIL"
			if r.Passed {
				mark = "PASS"
			}
			fmt.Printf("  [%s] %s\n", mark, r.RuleID)
		}
		return nil
	},
}

func printScan(s *domain.Scan, rep *domain.Report) {
	fmt.Printf("Scan:     %s\n", s.ID)
	fmt.Printf("Host:     %s\n", s.Hostname)
	fmt.Printf("Score:    %.2f (%d/%d passed)\n", s.ComplianceScore, s.PassedRules, s.TotalRules)
	fmt.Printf("Severity: %s\n", s.Severity)
	if rep != nil {
		fmt.Printf("Report:   %s\n", rep.Status)
		fmt.Printf("Summary:  %s\n", rep.Summary)
		for _, r := range rep.Remediations {
			fmt.Printf("  - %s\n", r)
		}
	}
	if s.OutputPath != "" {
		fmt.Printf("Artifact: %s\n", s.OutputPath)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{scanCmd, enqueueCmd} {
		c.Flags().StringVar(&scanFlags.org, "org", "", "organization id")
		c.Flags().StringVar(&scanFlags.group, "group", "", "rule group id")
		c.Flags().StringVar(&scanFlags.hostname, "host", "", "hostname override")
		_ = c.MarkFlagRequired("org")
		_ = c.MarkFlagRequired("group")
	}
	scanCmd.Flags().StringVar(&scanFlags.ip, "ip", "", "ip address override")

	for _, c := range []*cobra.Command{listScansCmd, showScanCmd} {
		c.Flags().StringVar(&scanFlags.org, "org", "", "organization id")
		_ = c.MarkFlagRequired("org")
	}
	listScansCmd.Flags().IntVarP(&scanFlags.limit, "limit", "l", 20, "number of scans")

	scansCmd.AddCommand(listScansCmd, showScanCmd)
	rootCmd.AddCommand(scansCmd)
}
