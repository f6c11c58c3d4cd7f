package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/autograde/internal/importer"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/submission"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import exams from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	addLogFlags(f)
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a single answer without storing it",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.Int64("question-id", 0, "Question to grade against (required)")
	f.String("answer", "", "Answer text (- reads it from stdin)")
	addStoreFlags(f)
	addGradingFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("question-id")

	return cmd
}

func regradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regrade [SUBMISSION_ID...]",
		Short: "Retry grading of submissions left at submitted",
		RunE:  runRegrade,
	}
	f := cmd.Flags()
	f.Bool("pending", false, "Regrade every submission still at submitted")
	addStoreFlags(f)
	addGradingFlags(f)
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submissions and grades as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStoreFlags(f)
	addLogFlags(f)
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	im := importer.New(db)
	results := make([]importer.Result, 0, len(args))
	for _, path := range args {
		res, err := im.ImportFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		results = append(results, res)
	}
	return writeJSON(cmd.OutOrStdout(), results)
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	answer := v.GetString("answer")
	if answer == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read answer: %w", err)
		}
		answer = string(data)
	}

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	dispatcher, closeCache, err := newDispatcher(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer closeCache()

	q, err := db.GetQuestion(cmd.Context(), v.GetInt64("question-id"))
	if err != nil {
		return err
	}
	res, err := dispatcher.Grade(cmd.Context(), q, answer)
	if err != nil {
		return fmt.Errorf("grade: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

func runRegrade(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid submission id %q", a)
		}
		ids = append(ids, id)
	}
	if v.GetBool("pending") {
		subs, err := db.ListSubmissions(ctx)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		for _, s := range subs {
			if s.Status == model.StatusSubmitted {
				ids = append(ids, s.ID)
			}
		}
	}
	if len(ids) == 0 {
		return errors.New("no submissions to regrade: pass ids or --pending")
	}

	dispatcher, closeCache, err := newDispatcher(ctx, v)
	if err != nil {
		return err
	}
	defer closeCache()

	m := submission.NewManager(db, dispatcher)
	results := make([]submission.Result, 0, len(ids))
	var failed int
	for _, id := range ids {
		res, err := m.Regrade(ctx, id)
		if err != nil {
			slog.Error("regrade failed", "submission_id", id, "error", err)
			failed++
			continue
		}
		results = append(results, res)
	}
	if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions could not be regraded", failed, len(ids))
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.ExportAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}

	export := model.SubmissionExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeJSON(w, export)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
