// Command agentcore runs the agent from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/spf13/cobra"

	"github.com/hrygo/agentcore/internal/profile"
)

var (
	cfgFile   string
	userID    string
	sessionID string
	jsonOut   bool
	logLevel  string

	rootCmd = &cobra.Command{
		Use:   "agentcore",
		Short: "An agent with episodic and semantic memory that plans and runs tool chains",
		Long: `agentcore answers from conversation memory, calls tools, or both.

Configuration is read from defaults, then the optional --config file, then
AGENTCORE_* environment variables (for example AGENTCORE_LLM_API_KEY).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogger(cmd.ErrOrStderr(), logLevel)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "local", "user id")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id (default: a new random id)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	rootCmd.AddCommand(chatCmd, classifyCmd, statsCmd, searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(w io.Writer, level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
}

func loadProfile() (*profile.Profile, error) {
	return profile.Load(cfgFile)
}

// currentSession returns --session or a fresh id, stable for the process.
func currentSession() string {
	if sessionID == "" {
		sessionID = shortuuid.New()
	}
	return sessionID
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
