package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	adminToken   string
	pollInterval time.Duration
	noStream     bool
	tokenLength  int

	rootCmd = &cobra.Command{
		Use:           "boonerctl",
		Short:         "Command-line client for the booner orchestrator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	submitCmd = &cobra.Command{
		Use:   "submit [target] [action]",
		Short: "Submit an action against a deployment target",
		Args:  cobra.ExactArgs(2),
		RunE:  runSubmit,
	}
	tasksCmd = &cobra.Command{
		Use:   "tasks [task_id]",
		Short: "List all tasks, or show one task",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTasks,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the latest system status snapshot",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	targetsCmd = &cobra.Command{
		Use:   "targets",
		Short: "List deployment targets and their allowed actions",
		Args:  cobra.NoArgs,
		RunE:  runTargets,
	}
	reloadCmd = &cobra.Command{
		Use:   "reload",
		Short: "Ask the server to re-read its targets file",
		Args:  cobra.NoArgs,
		RunE:  runReload,
	}
	watchCmd = &cobra.Command{
		Use:       "watch [tasks|status]",
		Short:     "Stream task updates or system status as they happen",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"tasks", "status"},
		RunE:      runWatch,
	}

	// --- Utilities ---
	encryptCmd = &cobra.Command{
		Use:   "encrypt [password]",
		Short: "Encrypt an SSH password for targets.yaml with the server's encryption key",
		Args:  cobra.ExactArgs(1),
		RunE:  runEncrypt,
	}
	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Generate a random admin API key",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
)

func init() {
	defaultURL := os.Getenv("BOONER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8000"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "orchestrator base URL (env BOONER_URL)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("BOONER_AUTH_ADMIN_API_KEY"), "admin API key")

	watchCmd.Flags().DurationVar(&pollInterval, "poll-interval", 3*time.Second, "polling interval when streaming is unavailable")
	watchCmd.Flags().BoolVar(&noStream, "poll", false, "skip the websocket and poll the REST endpoints")

	tokenCmd.Flags().IntVar(&tokenLength, "length", 40, "token length")

	rootCmd.AddCommand(submitCmd, tasksCmd, statusCmd, targetsCmd, reloadCmd, watchCmd, encryptCmd, tokenCmd)
}
