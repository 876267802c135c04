package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"just_us/internal/client"
	"just_us/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

const defaultServerURL = "http://localhost:8080"

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command line client for the just-us chat",
	Long: `chatctl talks to a just-us chat server over its HTTP API and websocket.
Server address and token come from flags or CHAT_SERVER_URL / CHAT_TOKEN.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("server", "", "server url (default $CHAT_SERVER_URL or "+defaultServerURL+")")
	rootCmd.PersistentFlags().String("token", "", "bearer token (default $CHAT_TOKEN)")
	rootCmd.PersistentFlags().String("prefs", "", "prefs file path (default in the user config dir)")
	rootCmd.PersistentFlags().String("env", "", "environment for the prefs file (default $ENVIRONMENT or production)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "timeout for single requests")
}

type session struct {
	api       *client.API
	log       logger.Logger
	prefsPath string
	timeout   time.Duration
}

func flagOrEnv(cmd *cobra.Command, flag, env, fallback string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

func newSession(cmd *cobra.Command) (*session, error) {
	token := flagOrEnv(cmd, "token", "CHAT_TOKEN", "")
	if token == "" {
		return nil, errors.New("token is required: pass --token or set CHAT_TOKEN")
	}
	server := flagOrEnv(cmd, "server", "CHAT_SERVER_URL", defaultServerURL)

	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	prefsPath, _ := cmd.Flags().GetString("prefs")
	if prefsPath == "" {
		var err error
		prefsPath, err = client.DefaultPrefsPath(flagOrEnv(cmd, "env", "ENVIRONMENT", "production"))
		if err != nil {
			return nil, err
		}
	}

	return &session{
		api:       client.NewAPI(server, token),
		log:       logger.NewWithWriter(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}, level),
		prefsPath: prefsPath,
		timeout:   timeout,
	}, nil
}

func (s *session) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), s.timeout)
}
