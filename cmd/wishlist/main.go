// cmd/wishlist/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/temportalflux/wishlist/client"
	"github.com/temportalflux/wishlist/internal/app"
	"github.com/temportalflux/wishlist/internal/config"
	"github.com/temportalflux/wishlist/internal/diff"
	"github.com/temportalflux/wishlist/internal/list"
	liststore "github.com/temportalflux/wishlist/internal/list/storage"
	"github.com/temportalflux/wishlist/internal/logging"
	"github.com/temportalflux/wishlist/internal/status"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "wishlist",
	Short: "Keep wish lists in sync with a remote git host",
	Long: `wishlist stores wish lists locally and mirrors them to a data repository
on a remote git host. Commands that touch the local store open it directly, so
stop the daemon before running them. status and trigger talk to the daemon.`,
	SilenceUsage: true,
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}

// openApp opens the local store and remote for commands that run in-process.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewConsole(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func daemonClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return client.New("http://" + cfg.Addr()), nil
}

func init() {
	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Push queued edits and pull remote changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.SyncOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("syncing: %w", err)
			}
			fmt.Printf("%s %s at %s (%d fetched, %d updated, %d deleted)\n",
				green("synced"), outcome.Owner, outcome.Version,
				outcome.Fetched, outcome.ListsUpdated, outcome.ListsDeleted)
			fmt.Printf("mode: %s\n", outcome.Mode)
			return nil
		},
	}

	var listsCmd = &cobra.Command{
		Use:   "lists",
		Short: "List stored wish lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			lists, err := liststore.NewStore(a.DB).All()
			if err != nil {
				return fmt.Errorf("listing lists: %w", err)
			}

			shown := 0
			for _, l := range lists {
				if owner != "" && l.ID.Owner != owner {
					continue
				}
				shown++
				line := fmt.Sprintf("%s  %s", l.ID, l.LocalVersion)
				if l.Dirty() {
					line += "  " + yellow(fmt.Sprintf("%d pending", len(l.PendingChanges)))
				}
				fmt.Println(line)
			}
			if shown == 0 {
				fmt.Println("No lists found")
			}
			return nil
		},
	}

	var showCmd = &cobra.Command{
		Use:   "show <owner/slug>",
		Short: "Print a list's current content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := list.ParseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			l, err := liststore.NewStore(a.DB).Load(id)
			if err != nil {
				return fmt.Errorf("loading %s: %w", id, err)
			}
			fmt.Print(l.Content)
			for _, change := range l.PendingChanges {
				fmt.Printf("%s %s\n", yellow("pending:"), change.Message)
			}
			return nil
		},
	}

	var createCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a list owned by the authenticated user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			owner, err := a.Remote.Viewer(cmd.Context())
			if err != nil {
				return fmt.Errorf("checking authentication: %w", err)
			}
			l, err := a.Queue.Create(cmd.Context(), owner, args[0])
			if err != nil {
				return fmt.Errorf("creating list: %w", err)
			}
			fmt.Printf("%s %s\n", green("created"), l.ID)
			return nil
		},
	}

	var editCmd = &cobra.Command{
		Use:   "edit <owner/slug> <file>",
		Short: "Replace a list's content with a file",
		Long: `Queues the file's content as an edit of the list. The edit is pushed by the
daemon after the flush delay, by "wishlist save", or right away with --now.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")
			now, _ := cmd.Flags().GetBool("now")

			id, err := list.ParseID(args[0])
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			if message == "" {
				message = fmt.Sprintf("Edit %s", id.Slug)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			before, err := liststore.NewStore(a.DB).Load(id)
			if err != nil {
				return fmt.Errorf("loading %s: %w", id, err)
			}
			result := diff.NewEngine(3).Diff(before.Content, string(body))
			if result.Stats.Changes() == 0 {
				fmt.Println("No changes")
				return nil
			}
			printColoredDiff(result.Format())

			if err := a.Queue.Commit(cmd.Context(), id, message, string(body)); err != nil {
				return fmt.Errorf("queueing edit: %w", err)
			}
			if now {
				if err := a.Queue.Flush(cmd.Context(), id); err != nil {
					return fmt.Errorf("pushing %s: %w", id, err)
				}
				fmt.Printf("%s %s (%s)\n", green("pushed"), id, result.Stats)
				return nil
			}
			fmt.Printf("%s %s (%s)\n", yellow("queued"), id, result.Stats)
			return nil
		},
	}

	var saveCmd = &cobra.Command{
		Use:   "save [owner/slug]",
		Short: "Push queued edits now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				if err := a.Queue.FlushAll(cmd.Context()); err != nil {
					return fmt.Errorf("pushing queued edits: %w", err)
				}
				fmt.Println(green("all lists saved"))
				return nil
			}

			id, err := list.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := a.Queue.Flush(cmd.Context(), id); err != nil {
				return fmt.Errorf("pushing %s: %w", id, err)
			}
			fmt.Printf("%s %s\n", green("saved"), id)
			return nil
		},
	}

	var deleteCmd = &cobra.Command{
		Use:   "delete <owner/slug>",
		Short: "Delete a list remotely and locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := list.ParseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Queue.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting %s: %w", id, err)
			}
			fmt.Printf("%s %s\n", red("deleted"), id)
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show what the daemon is doing",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			if !st.Active {
				fmt.Println("Idle")
			}
			for depth, stage := range st.Stages {
				fmt.Printf("%s%s\n", strings.Repeat("  ", depth), formatStage(stage))
			}
			for _, u := range st.Users {
				state := green("up to date")
				if u.Stale {
					state = yellow("remote has newer commits")
				}
				fmt.Printf("%s  %s  %s\n", u.Login, u.LocalVersion, state)
			}
			return nil
		},
	}

	var triggerCmd = &cobra.Command{
		Use:   "trigger",
		Short: "Ask the daemon to sync now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.TriggerSync(cmd.Context())
			if err != nil {
				return err
			}
			if res.Queued {
				fmt.Printf("%s %s\n", green("sync requested"), res.RequestID)
			} else {
				fmt.Println(yellow("a sync is already pending"))
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to config.json")
	flags.String("db", "", "database directory")
	flags.String("remote", "", "remote host kind (github, memory)")
	flags.String("token", "", "remote API token")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Int("addr-port", 0, "port of the daemon API")
	flags.String("workspace", "", "directory mirroring lists as files")

	listsCmd.Flags().StringP("owner", "o", "", "only lists of this owner")
	editCmd.Flags().StringP("message", "m", "", "commit message")
	editCmd.Flags().Bool("now", false, "push immediately instead of waiting for the flush delay")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(triggerCmd)
}

func formatStage(stage status.Stage) string {
	if stage.Progress == nil {
		return stage.Title
	}
	return fmt.Sprintf("%s %s", stage.Title, cyan(fmt.Sprintf("[%d/%d]", stage.Progress.Current, stage.Progress.Max)))
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}
