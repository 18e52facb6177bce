package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/samvad-hq/softbase-go/internal/config"
	"github.com/samvad-hq/softbase-go/internal/logger"
	"github.com/samvad-hq/softbase-go/pkg/softbase"
	"github.com/spf13/cobra"
)

type cliState struct {
	url    string
	apiKey string
	log    logger.Logger
	out    io.Writer
}

func newRootCmd(cfg *config.Config, log logger.Logger, out io.Writer) *cobra.Command {
	st := &cliState{log: log, out: out}

	rootCmd := &cobra.Command{
		Use:   "softbase",
		Short: "Command line client for a Softbase key-value backend",
		Long: `softbase sends create/read/update/delete calls to a Softbase backend and prints
the normalized {"status", "data"} response as JSON. Non-2xx statuses are printed, not treated as failures.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&st.url, "url", cfg.SoftbaseURL, "backend base URL (env SOFTBASE_URL)")
	rootCmd.PersistentFlags().StringVar(&st.apiKey, "api-key", cfg.SoftbaseAPIKey, "API key sent as X-API-Key (env SOFTBASE_API_KEY)")

	rootCmd.AddCommand(
		newCreateCmd(st),
		newReadCmd(st),
		newReadAllCmd(st),
		newUpdateCmd(st),
		newDeleteCmd(st),
		newDeleteAllCmd(st),
	)
	return rootCmd
}

func (st *cliState) client() *softbase.Client {
	return softbase.New(st.url, st.apiKey, softbase.WithLogger(st.log))
}

func (st *cliState) print(resp *softbase.Response) error {
	enc := json.NewEncoder(st.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// parseValue treats the argument as JSON and falls back to a plain string.
func parseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}
