package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pbaille/leaknote/internal/api"
	"github.com/pbaille/leaknote/internal/bot"
	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/fix"
	"github.com/pbaille/leaknote/internal/maintenance"
	"github.com/pbaille/leaknote/internal/query"
)

var (
	dbPath     string
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "leaknote",
		Short:        "Capture notes and file them into categories",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $HOME/.leaknote/leaknote.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(replyCmd())
	rootCmd.AddCommand(fixCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func captureCmd() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "capture [text]",
		Short: "Capture a note, optionally with a category prefix like 'idea:'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			msg := bot.Message{
				ID:     uuid.New().String(),
				ChatID: chatID,
				Text:   strings.Join(args, " "),
			}
			fmt.Printf("message %s\n\n", msg.ID)

			if err := a.dispatcher(stdoutSender{}).Handle(ctx, msg); err != nil {
				return err
			}
			a.drain(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "cli", "chat id")
	return cmd
}

func replyCmd() *cobra.Command {
	var chatID, parent string

	cmd := &cobra.Command{
		Use:   "reply [bot-message-id] [text]",
		Short: "Reply to a bot message (answer a clarification or send fix:<category>)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			msg := bot.Message{
				ID:     uuid.New().String(),
				ChatID: chatID,
				Text:   strings.Join(args[1:], " "),
				ReplyTo: &bot.Reply{
					MessageID:       args[0],
					FromBot:         true,
					ParentMessageID: parent,
				},
			}

			if err := a.dispatcher(stdoutSender{}).Handle(ctx, msg); err != nil {
				return err
			}
			a.drain(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "cli", "chat id")
	cmd.Flags().StringVar(&parent, "parent", "", "message the bot message answered (needed for fix:)")
	return cmd
}

func fixCmd() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "fix [message-id] [category]",
		Short: "Move a captured note to another category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, ok := domain.ParseCategory(args[1])
			if !ok {
				return fmt.Errorf("unknown category: %s", args[1])
			}

			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.fix.FixMessage(cmd.Context(), chatID, args[0], cat)
			if err != nil {
				return err
			}
			out, err := fixOutcome(res)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "cli", "chat id")
	return cmd
}

// fixOutcome is the line printed for res. A note already in the requested
// category is not an error.
func fixOutcome(res fix.Result) (string, error) {
	switch {
	case res.Unchanged:
		return res.Message, nil
	case !res.Success:
		return "", errors.New(res.Message)
	default:
		return fmt.Sprintf("Moved %s -> %s: %s", domain.Display(res.OldCategory), domain.Display(res.NewCategory), res.Name), nil
	}
}

func queryCmd() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "query [command]",
		Short: "Run a query such as 'projects waiting' or 'recall kafka'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			text := strings.Join(args, " ")
			if !query.IsQuery(text) {
				text = "?" + text
			}
			msg := bot.Message{ID: uuid.New().String(), ChatID: chatID, Text: text}
			return a.dispatcher(stdoutSender{}).Handle(cmd.Context(), msg)
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "cli", "chat id")
	return cmd
}

func inboxCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List recent captures and where they went",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.store.ListInboxLog(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("Inbox is empty. Use 'leaknote capture' to add a note.")
				return nil
			}

			for _, e := range entries {
				dest := "-"
				if e.Destination != "" {
					dest = string(e.Destination)
				}
				fmt.Printf("%s  %-12s %-10s %s\n", e.MessageID, e.Status, dest, truncate(e.RawText, 60))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [category] [id]",
		Short: "Show a filed record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, ok := domain.ParseCategory(args[0])
			if !ok {
				return fmt.Errorf("unknown category: %s", args[0])
			}

			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.GetRecord(cmd.Context(), cat, args[1])
			if err != nil {
				return err
			}

			fmt.Printf("Category: %s\n", domain.Display(cat))
			fmt.Printf("Name:     %s\n", rec.DisplayName())
			if tags := rec.RecordTags(); len(tags) > 0 {
				fmt.Printf("Tags:     %s\n", strings.Join(tags, ", "))
			}
			if m, err := a.store.GetMemoryByRecord(cmd.Context(), args[1]); err == nil && len(m.Related) > 0 {
				fmt.Printf("Related:  %s\n", strings.Join(m.Related, ", "))
			}
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale clarifications and compact the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			m, err := a.maintainer()
			if err != nil {
				return err
			}
			r, err := m.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d clarifications, removed %d completed admin tasks\n", r.ExpiredClarifications, r.AdminRemoved)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts and this week's activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			m, err := a.maintainer()
			if err != nil {
				return err
			}
			s, err := m.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(maintenance.FormatStats(s))
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with background enrichment and maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			m, err := a.maintainer()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.New(a.store, a.dispatcher(api.Outbox{}), prometheus.DefaultGatherer, a.cfg.Server.Addr, a.logger)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(ctx) })
			g.Go(func() error { return m.Run(ctx) })
			if a.worker != nil {
				g.Go(func() error { return a.worker.Run(ctx) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (overrides config)")
	return cmd
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
