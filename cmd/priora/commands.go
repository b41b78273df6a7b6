package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fentz26/priora/internal/auth"
	"github.com/fentz26/priora/internal/config"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/estimator"
	"github.com/fentz26/priora/internal/mcdm"
	"github.com/fentz26/priora/internal/models"
	"github.com/spf13/cobra"
)

var jsonOut bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON responses")
}

// printJSON writes v indented to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- priority (local) ---

var priorityFlags struct {
	deadline   string
	daysLeft   int
	credits    int
	weight     int
	difficulty int
}

var priorityCmd = &cobra.Command{
	Use:   "priority",
	Short: "Compute a task's MCDM priority locally",
	RunE:  runPriority,
}

func init() {
	f := priorityCmd.Flags()
	f.StringVar(&priorityFlags.deadline, "deadline", "", "Deadline (YYYY-MM-DD)")
	f.IntVar(&priorityFlags.daysLeft, "days-left", 0, "Days until the deadline (instead of --deadline)")
	f.IntVar(&priorityFlags.credits, "credits", 0, "Module credits (1-4)")
	f.IntVar(&priorityFlags.weight, "weight", 0, "Assignment weight percentage (0-100)")
	f.IntVar(&priorityFlags.difficulty, "difficulty", 3, "Difficulty rating (1-5)")
	priorityCmd.MarkFlagRequired("credits")
	priorityCmd.MarkFlagRequired("weight")
	priorityCmd.MarkFlagsMutuallyExclusive("deadline", "days-left")
}

func runPriority(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	in := engine.PriorityInput{
		DaysLeft:   priorityFlags.daysLeft,
		Credits:    priorityFlags.credits,
		Weight:     priorityFlags.weight,
		Difficulty: priorityFlags.difficulty,
	}
	if priorityFlags.deadline != "" {
		deadline, err := mcdm.ParseDeadline(priorityFlags.deadline)
		if err != nil {
			return err
		}
		in.DaysLeft = mcdm.DaysUntil(deadline, time.Now())
	} else if !cmd.Flags().Changed("days-left") {
		return fmt.Errorf("one of --deadline or --days-left is required")
	}
	if err := in.Validate(); err != nil {
		return err
	}

	res := mcdm.NewPipeline(cfg.Scoring).Compute(in.DaysLeft, in.Credits, in.Weight, in.Difficulty)
	if jsonOut {
		return printJSON(res)
	}
	printScore(os.Stdout, in.DaysLeft, res)
	return nil
}

func printScore(w io.Writer, daysLeft int, res models.ScoreResult) {
	fmt.Fprintf(w, "Days left:        %d\n", daysLeft)
	fmt.Fprintf(w, "Urgency score:    %d\n", res.Urgency)
	fmt.Fprintf(w, "Impact score:     %d\n", res.Impact)
	fmt.Fprintf(w, "Difficulty score: %d\n", res.DifficultyScore)
	fmt.Fprintf(w, "Final score:      %.2f\n", res.Final)
	fmt.Fprintf(w, "Priority:         %s\n", res.Label)
}

// --- difficulty ---

var difficultyFlags struct {
	suggested int
}

var difficultyCmd = &cobra.Command{
	Use:   "difficulty [text]",
	Short: "Resolve a task's difficulty with the classifier",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDifficulty,
}

func init() {
	difficultyCmd.Flags().IntVar(&difficultyFlags.suggested, "suggested", 3, "Suggested difficulty (1-5)")
}

func runDifficulty(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/difficulty", map[string]interface{}{
		"text":                 strings.Join(args, " "),
		"suggested_difficulty": difficultyFlags.suggested,
	})
	if err != nil {
		return err
	}

	var res models.DifficultyResolution
	if err := json.Unmarshal(resp, &res); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("Difficulty: %d/5 %s\n", res.Difficulty, res.Label)
	fmt.Printf("Method:     %s\n", res.Method)
	fmt.Printf("Confidence: %.1f%%\n", res.Confidence)
	return nil
}

// --- predict ---

var predictFlags struct {
	userID     string
	difficulty int
}

var predictCmd = &cobra.Command{
	Use:   "predict [subtask]",
	Short: "Predict how long a subtask will take",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictFlags.userID, "user", "", "User ID (defaults to the token subject)")
	predictCmd.Flags().IntVar(&predictFlags.difficulty, "difficulty", 3, "Difficulty of the main task (1-5)")
}

func runPredict(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/predict", map[string]interface{}{
		"subtask":    strings.Join(args, " "),
		"user_id":    predictFlags.userID,
		"difficulty": predictFlags.difficulty,
	})
	if err != nil {
		return err
	}

	var pred models.Prediction
	if err := json.Unmarshal(resp, &pred); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(pred)
	}

	fmt.Printf("Predicted time: %s (%s, %s confidence)\n",
		estimator.FormatMinutes(pred.PredictedTime), pred.Method, pred.Confidence)
	fmt.Printf("%s\n", pred.Explanation)
	if len(pred.SimilarTasks) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nSIMILARITY\tACTUAL\tTASK")
		for _, m := range pred.SimilarTasks {
			fmt.Fprintf(w, "%.3f\t%s\t%s\n", m.Similarity, estimator.FormatMinutes(m.ActualTime), m.Description)
		}
		w.Flush()
	}
	return nil
}

// --- predict-batch ---

var batchFlags struct {
	userID     string
	task       string
	difficulty int
}

var predictBatchCmd = &cobra.Command{
	Use:   "predict-batch [subtask...]",
	Short: "Predict every subtask of a main task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredictBatch,
}

func init() {
	predictBatchCmd.Flags().StringVar(&batchFlags.userID, "user", "", "User ID (defaults to the token subject)")
	predictBatchCmd.Flags().StringVar(&batchFlags.task, "task", "", "Main task name")
	predictBatchCmd.Flags().IntVar(&batchFlags.difficulty, "difficulty", 3, "Difficulty of the main task (1-5)")
}

func runPredictBatch(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/predict-batch", map[string]interface{}{
		"user_id":   batchFlags.userID,
		"main_task": models.MainTask{Name: batchFlags.task, Difficulty: batchFlags.difficulty},
		"subtasks":  args,
	})
	if err != nil {
		return err
	}

	var batch models.BatchPrediction
	if err := json.Unmarshal(resp, &batch); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(batch)
	}
	printBatch(os.Stdout, &batch)
	return nil
}

func printBatch(out io.Writer, batch *models.BatchPrediction) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSUBTASK\tTIME\tMETHOD\tCONFIDENCE")
	for _, p := range batch.Predictions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.SubtaskNumber, p.SubtaskText,
			estimator.FormatMinutes(p.PredictedTime), p.Method, p.Confidence)
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal: %s across %d subtasks (average %.1f minutes)\n",
		estimator.FormatMinutes(batch.TotalTime), batch.TaskCount, batch.AverageTime)
}

// --- save ---

var saveFlags struct {
	file string
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Schedule planned subtasks from a JSON file",
	Long: `Reads {"user_id", "main_task", "predictions"} from --file (or stdin with "-")
and stores every planned subtask as a scheduled task record.`,
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringVarP(&saveFlags.file, "file", "f", "-", "JSON file with the planned subtasks")
}

func runSave(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if saveFlags.file != "-" {
		f, err := os.Open(saveFlags.file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var body json.RawMessage
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return fmt.Errorf("parse %s: %w", saveFlags.file, err)
	}
	resp, err := apiPost("/save-tasks", body)
	if err != nil {
		return err
	}

	var result struct {
		TaskCount int                 `json:"task_count"`
		Records   []models.TaskRecord `json:"records"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(result.Records)
	}
	fmt.Printf("Saved %d tasks\n", result.TaskCount)
	for _, rec := range result.Records {
		fmt.Printf("  %s  %s\n", rec.ID, rec.Subtask.Description)
	}
	return nil
}

// --- complete ---

var completeFlags struct {
	userID string
	actual int
}

var completeCmd = &cobra.Command{
	Use:   "complete [subtask]",
	Short: "Record the actual time spent on a scheduled subtask",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runComplete,
}

func init() {
	completeCmd.Flags().StringVar(&completeFlags.userID, "user", "", "User ID (defaults to the token subject)")
	completeCmd.Flags().IntVar(&completeFlags.actual, "actual", 0, "Actual minutes spent")
	completeCmd.MarkFlagRequired("actual")
}

func runComplete(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/complete", map[string]interface{}{
		"subtask":     strings.Join(args, " "),
		"user_id":     completeFlags.userID,
		"actual_time": completeFlags.actual,
	})
	if err != nil {
		return err
	}

	var result struct {
		Updated bool   `json:"updated"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(result)
	}
	fmt.Println(result.Message)
	return nil
}

// --- tasks ---

var tasksFlags struct {
	userID string
	status string
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List a user's task records",
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksFlags.userID, "user", "", "User ID (defaults to the token subject)")
	tasksCmd.Flags().StringVar(&tasksFlags.status, "status", "", "Filter by status (scheduled, completed)")
}

func runTasks(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if tasksFlags.userID != "" {
		q.Set("user_id", tasksFlags.userID)
	}
	if tasksFlags.status != "" {
		q.Set("status", tasksFlags.status)
	}
	resp, err := apiGet("/tasks", q)
	if err != nil {
		return err
	}

	var result struct {
		Tasks []models.TaskRecord `json:"tasks"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(result.Tasks)
	}

	if len(result.Tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMAIN TASK\tSUBTASK\tESTIMATE\tACTUAL")
	for _, t := range result.Tasks {
		actual := "-"
		if t.Estimates.ActualTime != nil {
			actual = estimator.FormatMinutes(*t.Estimates.ActualTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(t.ID), t.Status, t.MainTask.Name, t.Subtask.Description,
			estimator.FormatMinutes(t.Estimates.SystemEstimate), actual)
	}
	w.Flush()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- accuracy ---

var accuracyFlags struct {
	snapshot bool
}

var accuracyCmd = &cobra.Command{
	Use:   "accuracy [user-id]",
	Short: "Show a user's estimation accuracy",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccuracy,
}

func init() {
	accuracyCmd.Flags().BoolVar(&accuracyFlags.snapshot, "snapshot", false, "Evaluate completed tasks and store a new snapshot first")
}

func runAccuracy(cmd *cobra.Command, args []string) error {
	path := "/accuracy/" + url.PathEscape(args[0])

	var resp []byte
	var err error
	if accuracyFlags.snapshot {
		resp, err = apiPost(path+"/snapshot", nil)
	} else {
		resp, err = apiGet(path, nil)
	}
	if err != nil {
		return err
	}

	var log models.AccuracyLog
	if err := json.Unmarshal(resp, &log); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(log)
	}
	fmt.Printf("Mean absolute error: %.2f minutes\n", log.MAE)
	fmt.Printf("Within 5 minutes:    %.2f%%\n", log.AccuracyWithin5Min)
	fmt.Printf("Completed tasks:     %d\n", log.TrainingSize)
	fmt.Printf("Evaluated:           %s\n", log.TrainingDate.Format(time.RFC3339))
	return nil
}

// --- analyses ---

var analysesFlags struct {
	userID   string
	priority string
	days     int
	limit    int
}

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "List saved task analyses",
	Long: `Lists the analyses saved by "priora analyze", newest first.

--priority keeps one label and orders by final score; --days keeps tasks due
within that many days, soonest first.`,
	RunE: runAnalyses,
}

var analysesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count saved analyses per priority",
	RunE:  runAnalysesStats,
}

var analysesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a saved analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalysesDelete,
}

func init() {
	analysesCmd.PersistentFlags().StringVar(&analysesFlags.userID, "user", "", "User ID (defaults to the token subject)")
	analysesCmd.Flags().StringVar(&analysesFlags.priority, "priority", "", "Filter by priority (High, Medium, Low)")
	analysesCmd.Flags().IntVar(&analysesFlags.days, "days", 7, "Only tasks due within this many days")
	analysesCmd.Flags().IntVar(&analysesFlags.limit, "limit", 0, "Maximum number of analyses")
	analysesCmd.AddCommand(analysesStatsCmd)
	analysesCmd.AddCommand(analysesDeleteCmd)
}

// analysesQuery builds the list query; days applies only when set.
func analysesQuery(withDays bool) url.Values {
	q := url.Values{}
	if analysesFlags.userID != "" {
		q.Set("user_id", analysesFlags.userID)
	}
	if analysesFlags.priority != "" {
		q.Set("priority", analysesFlags.priority)
	}
	if withDays {
		q.Set("days", strconv.Itoa(analysesFlags.days))
	}
	if analysesFlags.limit > 0 {
		q.Set("limit", strconv.Itoa(analysesFlags.limit))
	}
	return q
}

func runAnalyses(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/analyses", analysesQuery(cmd.Flags().Changed("days")))
	if err != nil {
		return err
	}

	var result struct {
		Analyses []models.Analysis `json:"analyses"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(result.Analyses)
	}
	printAnalyses(os.Stdout, result.Analyses)
	return nil
}

func printAnalyses(out io.Writer, analyses []models.Analysis) {
	if len(analyses) == 0 {
		fmt.Fprintln(out, "No analyses found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID	PRIORITY	SCORE	DAYS LEFT	DIFFICULTY	TASK")
	for _, a := range analyses {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%d/5\t%s\n",
			shortID(a.ID), a.Priority, a.Score.Final, a.DaysLeft, a.Difficulty.Difficulty, a.TaskName)
	}
	w.Flush()
}

func runAnalysesStats(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if analysesFlags.userID != "" {
		q.Set("user_id", analysesFlags.userID)
	}
	resp, err := apiGet("/analyses/stats", q)
	if err != nil {
		return err
	}

	var stats models.AnalysisStats
	if err := json.Unmarshal(resp, &stats); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(stats)
	}
	fmt.Printf("Total:  %d\n", stats.Total)
	fmt.Printf("High:   %d\n", stats.High)
	fmt.Printf("Medium: %d\n", stats.Medium)
	fmt.Printf("Low:    %d\n", stats.Low)
	return nil
}

func runAnalysesDelete(cmd *cobra.Command, args []string) error {
	if _, err := apiDelete("/analyses/" + url.PathEscape(args[0])); err != nil {
		return err
	}
	fmt.Printf("Deleted analysis %s\n", args[0])
	return nil
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the daemon's health",
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := CheckHealth()
		if health != nil {
			fmt.Printf("ok=%t db=%s classifier=%s version=%s\n", health.OK, health.DB, health.Classifier, health.Version)
		}
		return err
	},
}

// --- token ---

var tokenFlags struct {
	userID string
	ttl    time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with server.jwt_secret",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.userID, "user", "", "User ID to bind the token to")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is not set")
	}
	tok, err := auth.GenerateToken([]byte(cfg.Server.JWTSecret), tokenFlags.userID, tokenFlags.ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
