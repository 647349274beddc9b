package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/ragdesk/internal/api"
	"github.com/kalambet/ragdesk/internal/config"
	"github.com/kalambet/ragdesk/internal/storage"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <user_id> [files...]",
	Short: "Build a user's vectorstore from documents",
	Long: `Build a user's vectorstore from documents.

Examples:
  ragdesk ingest alice ./syllabus.pdf ./notes.md
  ragdesk ingest alice --text "Office hours are on Tuesday"
  ragdesk ingest alice --url https://example.com/course --async`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		texts, _ := cmd.Flags().GetStringArray("text")
		urls, _ := cmd.Flags().GetStringArray("url")
		async, _ := cmd.Flags().GetBool("async")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runIngest(cmd.Context(), client, cmd.OutOrStdout(), ingestArgs{
			userID: args[0],
			files:  args[1:],
			texts:  texts,
			urls:   urls,
			async:  async,
		})
	},
}

type ingestArgs struct {
	userID string
	files  []string
	texts  []string
	urls   []string
	async  bool
}

type ingestResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	VectorstorePath string `json:"vectorstore_path"`
	JobID           string `json:"job_id"`
}

func runIngest(ctx context.Context, client *apiClient, out io.Writer, a ingestArgs) error {
	if len(a.files) == 0 && len(a.texts) == 0 && len(a.urls) == 0 {
		return fmt.Errorf("at least one file, --text, or --url is required")
	}
	if len(a.files) > 0 && (len(a.texts) > 0 || len(a.urls) > 0) {
		return fmt.Errorf("files cannot be combined with --text or --url")
	}

	path := "/rag/ingest/" + url.PathEscape(a.userID)
	if a.async {
		path += "?async=true"
	}

	var result ingestResult
	var err error
	if len(a.files) > 0 {
		err = client.upload(ctx, path, a.files, &result)
	} else {
		err = client.call(ctx, http.MethodPost, path, api.IngestRequest{Texts: a.texts, URLs: a.urls}, &result)
	}
	if err != nil {
		return err
	}
	if result.JobID != "" {
		printSuccess("Queued ingest job %s", result.JobID)
		fmt.Fprintln(out, result.JobID)
		return nil
	}
	printSuccess("%s", result.Message)
	fmt.Fprintln(out, result.VectorstorePath)
	return nil
}

func init() {
	ingestCmd.Flags().StringArray("text", nil, "raw text to ingest (repeatable)")
	ingestCmd.Flags().StringArray("url", nil, "URL to fetch and ingest (repeatable)")
	ingestCmd.Flags().Bool("async", false, "queue the ingest and return a job id")
}

// --- jobs ---

var jobCmd = &cobra.Command{
	Use:   "job <job_id>",
	Short: "Show the state of a queued ingest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var job map[string]any
		if err := client.call(cmd.Context(), http.MethodGet, "/rag/jobs/"+url.PathEscape(args[0]), nil, &job); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

// --- sessions ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new <user_id>",
	Short: "Create a chat session and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := createSession(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func createSession(ctx context.Context, client *apiClient, userID string) (string, error) {
	var result struct {
		ChatID string `json:"chat_id"`
	}
	if err := client.call(ctx, http.MethodPost, "/rag/chat/create/"+url.PathEscape(userID), nil, &result); err != nil {
		return "", err
	}
	return result.ChatID, nil
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the newest chat session ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listSessions(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

func listSessions(ctx context.Context, client *apiClient, out io.Writer, limit int) error {
	var result struct {
		Sessions []string `json:"sessions"`
	}
	path := "/rag/chat/sessions?limit=" + strconv.Itoa(limit)
	if err := client.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return err
	}
	if len(result.Sessions) == 0 {
		printWarning("no chat sessions yet")
		return nil
	}
	for _, id := range result.Sessions {
		fmt.Fprintln(out, id)
	}
	return nil
}

func init() {
	sessionListCmd.Flags().Int("limit", 50, "maximum number of sessions to list")
	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <user_id> <session_id> <question...>",
	Short: "Ask a question in a chat session",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), client, cmd.OutOrStdout(), args[0], args[1], strings.Join(args[2:], " "))
	},
}

type chatResult struct {
	Success bool    `json:"success"`
	Answer  *string `json:"answer"`
	Error   *string `json:"error"`
}

func runChat(ctx context.Context, client *apiClient, out io.Writer, userID, sessionID, question string) error {
	path := fmt.Sprintf("/rag/chat/%s/%s", url.PathEscape(userID), url.PathEscape(sessionID))
	var result chatResult
	if err := client.call(ctx, http.MethodPost, path, map[string]string{"question": question}, &result); err != nil {
		return err
	}
	if !result.Success {
		msg := "unknown error"
		if result.Error != nil {
			msg = *result.Error
		}
		return fmt.Errorf("chat turn failed: %s", msg)
	}
	if result.Answer != nil {
		fmt.Fprintln(out, *result.Answer)
	}
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history <session_id>",
	Short: "Print a session's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showContext, _ := cmd.Flags().GetBool("context")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHistory(cmd.Context(), client, cmd.OutOrStdout(), args[0], showContext)
	},
}

func runHistory(ctx context.Context, client *apiClient, out io.Writer, sessionID string, showContext bool) error {
	base := "/rag/chat/" + url.PathEscape(sessionID)
	if showContext {
		var result struct {
			Context string `json:"context"`
		}
		if err := client.call(ctx, http.MethodGet, base+"/context", nil, &result); err != nil {
			return err
		}
		fmt.Fprintln(out, result.Context)
		return nil
	}

	var result struct {
		Exists   bool              `json:"exists"`
		Messages []storage.Message `json:"messages"`
	}
	if err := client.call(ctx, http.MethodGet, base+"/messages", nil, &result); err != nil {
		return err
	}
	if !result.Exists {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if len(result.Messages) == 0 {
		printWarning("no messages in session %s", sessionID)
		return nil
	}
	for _, m := range result.Messages {
		fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), colorize(colorBold, m.Role), m.Content)
	}
	return nil
}

func init() {
	historyCmd.Flags().Bool("context", false, "print the text of human messages only")
}

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend <course> <marks>",
	Short: "Suggest related courses",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		marks, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("marks must be a number: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result struct {
			Recommendations string `json:"recommendations"`
		}
		req := map[string]any{"course": args[0], "marks": marks}
		if err := client.call(cmd.Context(), http.MethodPost, "/rag/recommendations", req, &result); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Recommendations)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		writeConfig(cmd.OutOrStdout(), config.ShowAll(cfg))
		return nil
	},
}

func writeConfig(out io.Writer, keys []config.KeyInfo) {
	for _, k := range keys {
		fmt.Fprintf(out, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
