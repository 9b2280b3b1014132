package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/flowgraph/internal/logging"
	"github.com/ppiankov/flowgraph/internal/server"
)

// Exit codes.
const (
	ExitFailure            = 1
	ExitServiceUnreachable = 10
)

var (
	logLevel    string
	jsonLog     bool
	serviceAddr string

	logger = zap.NewNop()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&serviceAddr, "addr", server.DefaultAddr, "flowgraph service gRPC address")
}

var rootCmd = &cobra.Command{
	Use:   "flowgraph",
	Short: "Taint flow monitor with per-tag throughput enforcement",
	Long: "Tracks tagged data flowing between UIDs over a decaying time window and\n" +
		"terminates every process of a UID that receives more of a tag than policy allows.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel, jsonLog)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(ExitFailure)
}
