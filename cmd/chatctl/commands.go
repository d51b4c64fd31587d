package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

type rootOptions struct {
	server  string
	apiKey  string
	timeout time.Duration
}

func (o *rootOptions) client() *gatewayClient {
	return newGatewayClient(strings.TrimRight(o.server, "/"), o.apiKey, o.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "chatctl - command line client for chat-gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:10000", "gateway base URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("OPENROUTER_API_KEY"), "OpenRouter API key sent as bearer token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(newChatCmd(opts), newSummarizeCmd(opts), newUsageCmd(opts))
	return root
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var req models.ChatRequest

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a single chat message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Message = strings.Join(args, " ")

			var reply models.ChatReply
			if err := opts.client().post("/chat", &req, &reply); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Message)
			fmt.Fprintf(cmd.ErrOrStderr(), "(model: %s)\n", reply.Model)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Model, "model", "", "preferred model, tried before the fallback list")
	cmd.Flags().StringVar(&req.ChatID, "chat-id", "", "conversation id; enables memory")
	cmd.Flags().StringVar(&req.UserIdentity, "user", "", "user identity for memory lookup")
	return cmd
}

func newSummarizeCmd(opts *rootOptions) *cobra.Command {
	var (
		chatID string
		file   string
		user   string
	)

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a conversation history file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			var turns []models.ConversationTurn
			if err := json.Unmarshal(data, &turns); err != nil {
				return fmt.Errorf("parse history %s: %w", file, err)
			}

			body := map[string]any{
				"chat_id":       chatID,
				"messages":      turns,
				"user_identity": user,
			}
			var summary struct {
				Title   string   `json:"title"`
				Summary string   `json:"summary"`
				Topics  []string `json:"topics"`
			}
			if err := opts.client().post("/chat/summary", body, &summary); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Title:   %s\n", summary.Title)
			fmt.Fprintf(w, "Summary: %s\n", summary.Summary)
			if len(summary.Topics) > 0 {
				fmt.Fprintf(w, "Topics:  %s\n", strings.Join(summary.Topics, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "conversation id (required)")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with an array of {role, content} turns (required)")
	cmd.Flags().StringVar(&user, "user", "", "user identity")
	_ = cmd.MarkFlagRequired("chat-id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newUsageCmd(opts *rootOptions) *cobra.Command {
	var timeRange string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage by model and provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var usage models.TokenUsageStats
			if err := opts.client().get("/api/dashboard/token-usage", map[string]string{"time_range": timeRange}, &usage); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Requests: %d (%d estimated)\n", usage.TotalRequests, usage.EstimatedRequests)
			fmt.Fprintf(w, "Tokens:   %d (prompt %d, completion %d)\n",
				usage.TotalTokens, usage.TotalPromptTokens, usage.TotalCompletionTokens)
			for _, m := range usage.TokensByModel {
				fmt.Fprintf(w, "  %-40s %10d tokens  %6d requests\n", m.Model, m.TotalTokens, m.Requests)
			}
			if len(usage.TokensByProvider) > 0 {
				fmt.Fprintln(w, "Providers:")
				for _, p := range usage.TokensByProvider {
					fmt.Fprintf(w, "  %-40s %10d tokens  %6d requests\n", p.Provider, p.TotalTokens, p.Requests)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&timeRange, "range", "24h", "time range: 24h, 7d or 30d")
	return cmd
}
