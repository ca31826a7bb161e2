// Command chatstream runs the conversation server and administers its
// sessions over the control API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/chatstream/control"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type clientFlags struct {
	server  string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatstream",
		Short:         "Streaming conversation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cf := &clientFlags{}
	root.PersistentFlags().StringVar(&cf.server, "server", "http://localhost:8080", "Control API base URL")
	root.PersistentFlags().StringVar(&cf.token, "token", os.Getenv(control.EnvToken), "Control API bearer token")
	root.PersistentFlags().DurationVar(&cf.timeout, "timeout", 10*time.Second, "Control API request timeout")

	root.AddCommand(
		newServeCmd(),
		newSessionsCmd(cf),
		newQueryCmd(cf),
	)
	return root
}

func (cf *clientFlags) client() *control.Client {
	return control.NewClient(&http.Client{Timeout: cf.timeout}, cf.server, control.WithToken(cf.token))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
