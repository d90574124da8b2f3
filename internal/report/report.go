// Package report renders audit results for people: CSV exports and terminal tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/util"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"category", "check", "status", "recommendation", "degraded"}

// WriteCSV writes one row per finding of result.
func WriteCSV(w io.Writer, result *model.AuditResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if result != nil {
		for _, f := range result.Findings {
			row := []string{
				string(f.Category),
				f.Check,
				string(f.Status),
				f.Recommendation,
				strconv.FormatBool(f.Degraded),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("write csv row %s: %w", f.Check, err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteSummary prints a job's state, its category scores and its findings as tables.
func WriteSummary(w io.Writer, job *model.AuditJob) error {
	if _, err := fmt.Fprintf(w, "Audit %s\nTarget: %s\nStatus: %s\n", job.ID, job.TargetURL, job.Status); err != nil {
		return err
	}
	if job.Error != nil {
		_, err := fmt.Fprintf(w, "Error: %s (%s)\n", job.Error.Reason, job.Error.Code)
		return err
	}
	if job.Result == nil {
		return nil
	}

	result := job.Result
	duration := util.FormatAuditDuration(result.StartedAt, result.CompletedAt)
	if _, err := fmt.Fprintf(w, "Overall score: %.1f\nDuration: %s\n\n", result.OverallScore, duration); err != nil {
		return err
	}

	categories := tablewriter.NewWriter(w)
	categories.Header("Category", "Score", "Status", "Good", "Warning", "Critical")
	for _, cat := range model.Categories {
		score, ok := result.Categories[cat]
		if !ok {
			continue
		}
		scoreText := strconv.Itoa(score.Score)
		if score.Status == model.CategoryStatusNotEvaluated {
			scoreText = "-"
		}
		if err := categories.Append(
			string(cat),
			scoreText,
			string(score.Status),
			strconv.Itoa(score.Counts.Good),
			strconv.Itoa(score.Counts.Warning),
			strconv.Itoa(score.Counts.Critical),
		); err != nil {
			return fmt.Errorf("append category row: %w", err)
		}
	}
	if err := categories.Render(); err != nil {
		return fmt.Errorf("render categories: %w", err)
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	findings := tablewriter.NewWriter(w)
	findings.Header("Category", "Check", "Status", "Recommendation")
	for _, f := range result.Findings {
		status := string(f.Status)
		if f.Degraded {
			status += " (degraded)"
		}
		if err := findings.Append(string(f.Category), f.Check, status, f.Recommendation); err != nil {
			return fmt.Errorf("append finding row: %w", err)
		}
	}
	if err := findings.Render(); err != nil {
		return fmt.Errorf("render findings: %w", err)
	}
	return nil
}

// WriteHistory prints persisted audit runs as a table.
func WriteHistory(w io.Writer, runs []*model.AuditRun) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Target", "Status", "Score", "Completed", "Error")
	for _, run := range runs {
		score := "-"
		if run.OverallScore != nil {
			score = strconv.FormatFloat(*run.OverallScore, 'f', 1, 64)
		}
		completed := "-"
		if run.CompletedAt != nil {
			completed = run.CompletedAt.UTC().Format(time.RFC3339)
		}
		reason := ""
		if run.ErrorReason != nil {
			reason = *run.ErrorReason
		}
		if err := table.Append(run.ID, run.TargetURL, string(run.Status), score, completed, reason); err != nil {
			return fmt.Errorf("append history row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render history: %w", err)
	}
	return nil
}
