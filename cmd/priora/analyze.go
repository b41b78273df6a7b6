package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fentz26/priora/internal/config"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/tui"
	"github.com/spf13/cobra"
)

var analyzeFlags struct {
	input       string
	remote      bool
	name        string
	description string
	deadline    string
	credits     int
	weight      int
	difficulty  int
	subtasks    []string
	userID      string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a task: difficulty, priority and subtask estimates",
	Long: `Opens an interactive form collecting the deadline, credits, weight,
description and suggested difficulty of a task, then shows its priority.

Pass --name (with the other fields as flags) or --input <file.json> to run
without the form. The analysis runs in-process against the configured store
unless --remote is given.`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.input, "input", "", "JSON file with the analysis request")
	f.BoolVar(&analyzeFlags.remote, "remote", false, "Run the analysis on the daemon (--api)")
	f.StringVar(&analyzeFlags.name, "name", "", "Task name (skips the form)")
	f.StringVar(&analyzeFlags.description, "description", "", "Task description")
	f.StringVar(&analyzeFlags.deadline, "deadline", "", "Deadline (YYYY-MM-DD)")
	f.IntVar(&analyzeFlags.credits, "credits", 0, "Module credits (1-4)")
	f.IntVar(&analyzeFlags.weight, "weight", 0, "Assignment weight percentage (0-100)")
	f.IntVar(&analyzeFlags.difficulty, "difficulty", 3, "Suggested difficulty (1-5)")
	f.StringSliceVar(&analyzeFlags.subtasks, "subtask", nil, "Subtask to estimate (repeatable)")
	f.StringVar(&analyzeFlags.userID, "user", "", "User ID, required for subtask estimates")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	in, interactive, err := analyzeInput()
	if err != nil {
		return err
	}

	analyzer, closeFn, err := newAnalyzer(ctx, interactive)
	if err != nil {
		return err
	}
	defer closeFn()

	if interactive {
		res, err := tui.New(analyzer, tui.Defaults{
			UserID:     analyzeFlags.userID,
			Difficulty: analyzeFlags.difficulty,
		}).Run()
		if err != nil {
			return err
		}
		if res != nil && jsonOut {
			return printJSON(res)
		}
		return nil
	}

	res, err := analyzer.Analyze(ctx, in)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	printAnalysis(res)
	return nil
}

// analyzeInput builds the request from --input or the flags. It reports
// interactive when neither is given.
func analyzeInput() (engine.AnalyzeInput, bool, error) {
	var in engine.AnalyzeInput
	switch {
	case analyzeFlags.input != "":
		data, err := os.ReadFile(analyzeFlags.input)
		if err != nil {
			return in, false, fmt.Errorf("read input file: %w", err)
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return in, false, fmt.Errorf("parse input file: %w", err)
		}
		if in.UserID == "" {
			in.UserID = analyzeFlags.userID
		}
		return in, false, nil

	case analyzeFlags.name != "":
		return engine.AnalyzeInput{
			TaskName:            analyzeFlags.name,
			Description:         analyzeFlags.description,
			Deadline:            analyzeFlags.deadline,
			Credits:             analyzeFlags.credits,
			Weight:              analyzeFlags.weight,
			SuggestedDifficulty: analyzeFlags.difficulty,
			Subtasks:            analyzeFlags.subtasks,
			UserID:              analyzeFlags.userID,
		}, false, nil
	}
	return in, true, nil
}

func newAnalyzer(ctx context.Context, interactive bool) (tui.Analyzer, func(), error) {
	if analyzeFlags.remote {
		return tui.NewClient(apiAddr, apiToken), func() {}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if interactive {
		// Keep log lines off the form.
		cfg.Logging.Level = "error"
	}
	rt, err := buildRuntime(ctx, cfg, newLogger(cfg))
	if err != nil {
		return nil, nil, err
	}
	return rt.service, rt.Close, nil
}

func printAnalysis(a *models.Analysis) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Task:       %s\n", a.TaskName)
	if a.ID != "" {
		fmt.Printf("Saved as:   %s\n", a.ID)
	}
	fmt.Printf("Difficulty: %d/5 %s (%s, %.1f%% confidence)\n",
		a.Difficulty.Difficulty, a.Difficulty.Label, a.Difficulty.Method, a.Difficulty.Confidence)
	fmt.Println(strings.Repeat("-", 60))
	printScore(os.Stdout, a.DaysLeft, a.Score)
	if a.Estimates != nil && len(a.Estimates.Predictions) > 0 {
		fmt.Println(strings.Repeat("-", 60))
		printBatch(os.Stdout, a.Estimates)
	}
	fmt.Println(strings.Repeat("=", 60))
}
