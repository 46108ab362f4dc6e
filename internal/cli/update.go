package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"snapvault/internal/actions"
	"snapvault/internal/config"
	"snapvault/internal/executor"
	"snapvault/internal/fsatomic"
	"snapvault/internal/history"
	"snapvault/internal/metrics"
	"snapvault/internal/model"
	"snapvault/internal/objectstore"
	"snapvault/internal/pipeline"
	"snapvault/internal/planner"
	"snapvault/internal/retention"
	"snapvault/internal/snapshotstore"
)

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <config.yaml>",
		Short: "converge local snapshots and remote backups to the retention schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(args[0])
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "perform actions without prompting; required for non-TTY invocation")
	return cmd
}

func runUpdate(configPath string) error {
	log := logger()
	nonInteractive := !isatty.IsTerminal(os.Stdout.Fd())
	if nonInteractive && !force {
		fmt.Fprintln(os.Stderr, "snapvault: refusing to run non-interactively without --force")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	started := time.Now()

	tuples, stores, err := buildTuples(cfg, log)
	defer func() {
		for _, s := range stores {
			_ = s.Close()
		}
	}()
	if err != nil {
		return err
	}

	p := planner.New(log)
	assessment, warnings, err := p.Assess(tuples, started.Unix())
	if err != nil {
		return fmt.Errorf("assess: %w", err)
	}
	for _, w := range warnings {
		log.Warn().Msg(w)
	}

	var remotes []model.Remote
	for _, t := range tuples {
		remotes = append(remotes, t.Remotes...)
	}
	plan := actions.Compile(assessment, remotes, cfg.Location)

	if isEmptyPlan(plan) {
		fmt.Println("nothing to do")
		return nil
	}

	printAssessment(assessment, cfg.Location)
	printPlan(plan)

	if !force {
		if nonInteractive {
			os.Exit(1)
		}
		proceed := false
		prompt := &survey.Confirm{Message: "apply this plan?", Default: false}
		if err := survey.AskOne(prompt, &proceed); err != nil || !proceed {
			fmt.Println("declined; no action taken")

			undo := false
			undoPrompt := &survey.Confirm{Message: "undo proposed snapshots created this pass?", Default: false}
			if err := survey.AskOne(undoPrompt, &undo); err == nil && undo {
				if derr := undoSourceProposals(tuples, assessment); derr != nil {
					log.Warn().Err(derr).Msg("failed to undo proposed snapshots")
				}
			}
			return nil
		}
	}

	pipe := pipeline.Wrap(firstPipeThrough(cfg))
	exec := executor.New(log, pipe).WithBandwidthLimit(cfg.BandwidthLimitBytesPerSec)
	if cfg.StageUploads {
		exec = exec.WithStaging(cfg.UploadStagingDir)
	}
	if !nonInteractive {
		exec = exec.WithProgress()
	}
	report := exec.Run(plan)
	finished := time.Now()

	printReport(report)

	if err := recordHistory(configPath, len(tuples), report, started, finished); err != nil {
		log.Warn().Err(err).Msg("failed to record pass history")
	}
	if err := recordMetrics(configPath, len(tuples), report, warnings, finished.Sub(started)); err != nil {
		log.Warn().Err(err).Msg("failed to write metrics textfile")
	}

	if len(report.Errors) > 0 {
		return fmt.Errorf("pass completed with %d error(s): %v", len(report.Errors), report.Errors[0])
	}
	return nil
}

// buildTuples opens a SnapshotStore and ObjectStore per configured source
// and assembles the planner's ConfigTuples. Stores are returned separately
// so the caller can close every opened descriptor on every exit path.
func buildTuples(cfg *config.Config, log zerolog.Logger) ([]planner.ConfigTuple, []model.SnapshotStore, error) {
	var (
		tuples []planner.ConfigTuple
		stores []model.SnapshotStore
	)

	for _, src := range cfg.Sources {
		if err := preflight(src.Path); err != nil {
			return nil, stores, err
		}

		info, err := snapshotstore.QuerySource(src.Path)
		if err != nil {
			return nil, stores, fmt.Errorf("query source %s: %w", src.Path, err)
		}

		name := filepath.Base(src.Path)
		store, err := snapshotstore.NewBtrfs(log, name, src.SnapshotDir)
		if err != nil {
			return nil, stores, err
		}
		stores = append(stores, store)

		objStore, err := objectstore.NewS3(src.Remote.ID, objectstore.Config{
			Endpoint:  endpointHost(src.Remote.Endpoint.EndpointURL),
			Bucket:    src.Remote.Bucket,
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			UseSSL:    src.Remote.Endpoint.VerifyTLS,
			Region:    src.Remote.Endpoint.Region,
		})
		if err != nil {
			return nil, stores, err
		}

		tuples = append(tuples, planner.ConfigTuple{
			Source: model.Source{
				Name:     name,
				Path:     src.Path,
				UUID:     info.UUID,
				Ctransid: info.Ctransid,
			},
			SnapshotStore: store,
			Remotes:       []model.Remote{{ID: src.Remote.ID, Store: objStore}},
			Policy:        retention.NewRetentionPolicy(src.Preserve, time.Now().Unix(), cfg.Location),
		})
	}

	return tuples, stores, nil
}

func endpointHost(url string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	return url
}

func preflight(path string) error {
	return config.PreflightFilesystem(path)
}

func undoSourceProposals(tuples []planner.ConfigTuple, a *model.Assessment) error {
	for _, t := range tuples {
		if err := planner.DestroyProposed(a, t.Source.Name); err != nil {
			return err
		}
	}
	return nil
}

func firstPipeThrough(cfg *config.Config) [][]string {
	for _, s := range cfg.Sources {
		if len(s.PipeThrough) > 0 {
			return s.PipeThrough
		}
	}
	return nil
}

func isEmptyPlan(p *actions.Plan) bool {
	return len(p.Renames) == 0 && len(p.Uploads) == 0 && len(p.Destroys) == 0 && len(p.Deletes) == 0
}

// printAssessment summarizes why every considered snapshot and backup is
// or isn't kept, ahead of the action table, so the operator isn't left to
// infer preservation reasons from the rename/upload/destroy rows alone.
func printAssessment(a *model.Assessment, loc *time.Location) {
	snaps := make([]*model.AssessedSnapshot, 0, len(a.Snapshots))
	for _, s := range a.Snapshots {
		snaps = append(snaps, s)
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].SourceName != snaps[j].SourceName {
			return snaps[i].SourceName < snaps[j].SourceName
		}
		return snaps[i].Info.Ctransid < snaps[j].Info.Ctransid
	})

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"source", "ctime", "ctransid", "preserve"})
	for _, s := range snaps {
		row := table.Row{
			s.SourceName,
			time.Unix(s.Info.Ctime, 0).In(loc).Format(time.RFC3339),
			s.Info.Ctransid,
			describePreserve(s.Meta, loc),
		}
		if !s.Meta.Kept() {
			row[0] = color.RedString("%v", row[0])
		}
		t.AppendRow(row)
	}
	t.Render()
	fmt.Println()

	backups := make([]*model.AssessedBackup, 0, len(a.Backups))
	for _, b := range a.Backups {
		backups = append(backups, b)
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].RemoteID != backups[j].RemoteID {
			return backups[i].RemoteID < backups[j].RemoteID
		}
		return backups[i].ObjectKey < backups[j].ObjectKey
	})

	bt := table.NewWriter()
	bt.SetOutputMirror(os.Stdout)
	bt.AppendHeader(table.Row{"remote", "key", "preserve"})
	for _, b := range backups {
		row := table.Row{b.RemoteID, b.ObjectKey, describePreserve(b.Meta, loc)}
		if !b.Meta.Kept() {
			row[0] = color.RedString("%v", row[0])
		}
		bt.AppendRow(row)
	}
	bt.Render()
	fmt.Println()
}

func printPlan(p *actions.Plan) {
	if len(p.Renames) > 0 || len(p.Uploads) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"action", "target"})
		for _, r := range p.Renames {
			t.AppendRow(table.Row{color.YellowString("rename"), r.NewName})
		}
		for _, u := range p.Uploads {
			t.AppendRow(table.Row{color.GreenString("upload"), u.Key})
		}
		t.Render()
	}

	if len(p.Destroys) > 0 || len(p.Deletes) > 0 {
		lw := list.NewWriter()
		lw.SetStyle(list.StyleConnectedRounded)
		lw.AppendItem(color.RedString("destroy/delete"))
		lw.Indent()
		for _, d := range p.Destroys {
			lw.AppendItem(fmt.Sprintf("destroy snapshot %d", d.ID))
		}
		for _, d := range p.Deletes {
			lw.AppendItem(fmt.Sprintf("delete backup %s", d.Key))
		}
		lw.UnIndent()
		fmt.Println(lw.Render())
	}
}

func printReport(r executor.Report) {
	fmt.Printf("renamed=%d uploaded=%d destroyed=%d deleted=%d errors=%d\n",
		r.Renamed, r.Uploaded, r.Destroyed, r.Deleted, len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintln(os.Stderr, "error:", e)
	}
}

func historyPathFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".snapvault", "history.db")
}

func metricsPathFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".snapvault", "metrics.prom")
}

func recordHistory(configPath string, tuples int, r executor.Report, started, finished time.Time) error {
	path := historyPathFor(configPath)
	return fsatomic.WithLock(path, func() error {
		ledger, err := history.Open(path)
		if err != nil {
			return err
		}
		defer ledger.Close()

		rec := history.Record{
			StartedAt:  started,
			FinishedAt: finished,
			Tuples:     tuples,
			Renamed:    r.Renamed,
			Uploaded:   r.Uploaded,
			Destroyed:  r.Destroyed,
			Deleted:    r.Deleted,
		}
		if len(r.Errors) > 0 {
			rec.Error = r.Errors[0].Error()
		}
		return ledger.Append(rec)
	})
}

func recordMetrics(configPath string, tuples int, r executor.Report, warnings []string, d time.Duration) error {
	return metrics.WriteTextfile(metricsPathFor(configPath), metrics.PassMetrics{
		Tuples:    tuples,
		Renamed:   r.Renamed,
		Uploaded:  r.Uploaded,
		Destroyed: r.Destroyed,
		Deleted:   r.Deleted,
		Warnings:  len(warnings),
		Failed:    len(r.Errors) > 0,
		Duration:  d.Seconds(),
	})
}
