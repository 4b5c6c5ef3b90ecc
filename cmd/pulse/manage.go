package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/compliance-pulse/internal/application/schedules"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/benchmarks"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Migrate(ctx); err != nil {
			return err
		}
		a.logger.Info("schema up to date", "driver", a.store.Dialect().Name())
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir|file]",
	Short: "Load benchmark documents into the rule store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Migrate(ctx); err != nil {
			return err
		}
		loader := &benchmarks.Loader{Repo: a.store.Rules(), Logger: logging.Component(a.logger, "ingest")}
		n, err := loader.Load(ctx, args[0])
		if err != nil {
			return err
		}
		a.recordManual(ctx, "", audit.ActionBenchmarkIngested, "benchmark", args[0],
			fmt.Sprintf("%d benchmark(s) ingested", n))
		fmt.Printf("Ingested %d benchmark(s) from %s\n", n, args[0])
		return nil
	},
}

var groupFlags struct {
	org         string
	name        string
	description string
	benchmark   string
	rules       []string
	hostname    string
	ip          string
	tags        []string
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage rule groups",
}

var createGroupCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a rule group",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(groupFlags.rules) > 0 {
			found, err := a.store.Rules().ListByIDs(ctx, groupFlags.rules)
			if err != nil {
				return err
			}
			if len(found) != len(groupFlags.rules) {
				return fmt.Errorf("%d of %d rule ids are unknown", len(groupFlags.rules)-len(found), len(groupFlags.rules))
			}
		}
		g := &rules.Group{
			ID:              uuid.NewString(),
			OrganizationID:  groupFlags.org,
			Name:            groupFlags.name,
			Description:     groupFlags.description,
			BenchmarkID:     groupFlags.benchmark,
			RuleIDs:         groupFlags.rules,
			DefaultHostname: groupFlags.hostname,
			DefaultIP:       groupFlags.ip,
			Tags:            groupFlags.tags,
			CreatedAt:       a.clock.Now().UTC(),
		}
		if err := a.store.Groups().SaveGroup(ctx, g); err != nil {
			return err
		}
		a.recordManual(ctx, g.OrganizationID, audit.ActionGroupCreated, "rule_group", g.ID, g.Name)
		if outputJSON {
			return printJSON(g)
		}
		fmt.Printf("Created group %s (%s)\n", g.ID, g.Name)
		return nil
	},
}

var scheduleFlags struct {
	org       string
	group     string
	name      string
	frequency string
	interval  int
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scan schedules",
}

var createScheduleCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a schedule for a rule group",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		mgr := &schedules.Manager{
			Schedules: a.store.Schedules(),
			Jobs:      a.store.Jobs(),
			Groups:    a.store.Groups(),
			Logger:    logging.Component(a.logger, "scheduler"),
			Clock:     a.clock,
		}
		sc, err := mgr.Create(ctx, schedules.CreateCommand{
			OrganizationID:  scheduleFlags.org,
			GroupID:         scheduleFlags.group,
			Name:            scheduleFlags.name,
			Frequency:       jobs.Frequency(strings.ToLower(scheduleFlags.frequency)),
			IntervalMinutes: scheduleFlags.interval,
		})
		if err != nil {
			return err
		}
		a.recordManual(ctx, sc.OrganizationID, audit.ActionScheduleCreated, "schedule", sc.ID, sc.Name)
		if outputJSON {
			return printJSON(sc)
		}
		fmt.Printf("Created schedule %s every %d minutes\n", sc.ID, sc.IntervalMinutes)
		return nil
	},
}

var auditFlags struct {
	org   string
	limit int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent audit events of an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.store.Audit().ListEvents(ctx, auditFlags.org, auditFlags.limit)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(events)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tACTION\tRESOURCE\tMESSAGE")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\n",
				e.CreatedAt.Format(time.RFC3339), e.Action, e.ResourceType, e.ResourceID, e.Message)
		}
		return tw.Flush()
	},
}

func init() {
	f := createGroupCmd.Flags()
	f.StringVar(&groupFlags.org, "org", "", "organization id")
	f.StringVar(&groupFlags.name, "name", "", "group name")
	f.StringVar(&groupFlags.description, "description", "", "description")
	f.StringVar(&groupFlags.benchmark, "benchmark", "", "benchmark id")
	f.StringSliceVar(&groupFlags.rules, "rules", nil, "explicit rule ids (default: every rule of the benchmark)")
	f.StringVar(&groupFlags.hostname, "host", "", "default hostname")
	f.StringVar(&groupFlags.ip, "ip", "", "default ip address")
	f.StringSliceVar(&groupFlags.tags, "tags", nil, "tags")
	for _, name := range []string{"org", "name", "benchmark"} {
		_ = createGroupCmd.MarkFlagRequired(name)
	}
	groupCmd.AddCommand(createGroupCmd)

	f = createScheduleCmd.Flags()
	f.StringVar(&scheduleFlags.org, "org", "", "organization id")
	f.StringVar(&scheduleFlags.group, "group", "", "rule group id")
	f.StringVar(&scheduleFlags.name, "name", "", "schedule name")
	f.StringVar(&scheduleFlags.frequency, "frequency", "daily", "hourly | daily | custom")
	f.IntVar(&scheduleFlags.interval, "interval", 0, "interval in minutes for custom schedules")
	for _, name := range []string{"org", "group"} {
		_ = createScheduleCmd.MarkFlagRequired(name)
	}
	scheduleCmd.AddCommand(createScheduleCmd)

	auditCmd.Flags().StringVar(&auditFlags.org, "org", "", "organization id")
	auditCmd.Flags().IntVarP(&auditFlags.limit, "limit", "l", 50, "number of events")
	_ = auditCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(auditCmd)
}
