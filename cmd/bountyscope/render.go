package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/perplext/bountyscope/internal/core"
	"github.com/perplext/bountyscope/internal/pipeline"
	"github.com/perplext/bountyscope/internal/storage"
	"github.com/perplext/bountyscope/pkg/utils"
)

const maxErrorWidth = 60

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// renderReport prints one row per platform followed by a summary line
func renderReport(w io.Writer, result *core.FetchResult) {
	report := result.Report
	data := pterm.TableData{
		{"Platform", "State", "Listed", "Skipped", "Dropped", "Programs", "Degraded", "Duration", "Error"},
	}
	for _, res := range report.Results {
		data = append(data, []string{
			res.Platform,
			stateLabel(res.State),
			strconv.Itoa(res.RawCount),
			strconv.Itoa(res.Skipped),
			strconv.Itoa(res.Dropped),
			strconv.Itoa(len(res.Programs)),
			yesNo(res.Degraded),
			utils.FormatDuration(res.Duration.Round(time.Millisecond)),
			errorCell(res.Err),
		})
	}
	if err := renderTable(w, data); err != nil {
		fmt.Fprintf(w, "failed to render table: %v\n", err)
	}

	summary := fmt.Sprintf("%d programs written to %s", report.Programs(), result.OutputDir)
	if result.RunID != "" {
		summary += fmt.Sprintf(" (run %s)", result.RunID)
	}
	if failed := len(report.Failed()); failed > 0 {
		fmt.Fprintln(w, pterm.Yellow(fmt.Sprintf("%d of %d platforms failed; %s", failed, len(report.Results), summary)))
		return
	}
	fmt.Fprintln(w, pterm.Green(summary))
}

func renderRuns(w io.Writer, runs []storage.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet")
		return err
	}

	data := pterm.TableData{
		{"Run", "Started", "Duration", "Status", "Platforms", "Failed", "Programs"},
	}
	for _, run := range runs {
		duration := "-"
		if d := run.Duration(); d > 0 {
			duration = utils.FormatDuration(d.Round(time.Millisecond))
		}
		data = append(data, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			duration,
			run.Status,
			run.Platforms,
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Programs),
		})
	}
	return renderTable(w, data)
}

func renderPipelines(w io.Writer, run storage.Run, records []storage.PipelineRecord) error {
	fmt.Fprintf(w, "Run %s started %s: %s\n", run.ID, run.StartedAt.Local().Format(time.DateTime), run.Status)
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No pipelines recorded")
		return err
	}

	data := pterm.TableData{
		{"Platform", "State", "Listed", "Programs", "Dropped", "Degraded", "Duration", "Error"},
	}
	for _, rec := range records {
		data = append(data, []string{
			rec.Platform,
			rec.State,
			strconv.Itoa(rec.RawCount),
			strconv.Itoa(rec.Programs),
			strconv.Itoa(rec.Dropped),
			yesNo(rec.Degraded),
			utils.FormatDuration(time.Duration(rec.DurationMS) * time.Millisecond),
			utils.TruncateString(rec.Error, maxErrorWidth),
		})
	}
	return renderTable(w, data)
}

func renderHandles(w io.Writer, handles []string) error {
	if len(handles) == 0 {
		_, err := fmt.Fprintln(w, "No programs recorded")
		return err
	}
	for _, h := range handles {
		if _, err := fmt.Fprintln(w, h); err != nil {
			return err
		}
	}
	return nil
}

func stateLabel(state pipeline.State) string {
	switch state {
	case pipeline.StateDone:
		return pterm.Green(string(state))
	case pipeline.StateFailed:
		return pterm.Red(string(state))
	}
	return string(state)
}

func errorCell(err error) string {
	if err == nil {
		return ""
	}
	return utils.TruncateString(err.Error(), maxErrorWidth)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
