package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skosovsky/toolpipe"
	"github.com/skosovsky/toolpipe/internal/server"
)

var errCallFailed = errors.New("tool call failed")

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "toolpipe",
		Short:         "Validate, serve, and invoke LLM tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./toolpipe.yaml)")

	load := func() (*app, error) { return newApp(configPath) }
	root.AddCommand(newServeCmd(load), newToolsCmd(load), newCallCmd(load))
	return root
}

func newServeCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.reg.ValidateToolsForProvider(a.cfg.Provider).Err(); err != nil {
				a.logger.Warn("tools not accepted by provider", "provider", a.cfg.Provider, "error", err)
			}
			opts := []server.Option{
				server.WithLogger(a.logger),
				server.WithDefaultProvider(a.cfg.Provider),
			}
			if a.cfg.Metrics.Enabled {
				opts = append(opts, server.WithMetrics(a.cfg.Metrics.Path, a.metrics))
			}
			return server.New(a.reg, a.exec, opts...).Run(cmd.Context(), server.Config{
				Addr:            a.cfg.Server.Addr,
				ReadTimeout:     a.cfg.Server.ReadTimeout,
				WriteTimeout:    a.cfg.Server.WriteTimeout,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			})
		},
	}
}

func newToolsCmd(load func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}

	var asJSON bool
	var tag string
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()
			defs := a.reg.GetAllTools()
			if tag != "" {
				defs = a.reg.GetTools(toolpipe.HasTag(tag))
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), defs)
			}
			return writeTable(cmd.OutOrStdout(), defs)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print definitions as JSON")
	list.Flags().StringVar(&tag, "tag", "", "only tools carrying this tag")

	var provider string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check tool definitions against a provider's rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()
			if provider == "" {
				provider = a.cfg.Provider
			}
			report := a.reg.ValidateToolsForProvider(provider)
			out := cmd.OutOrStdout()
			if report.Valid {
				fmt.Fprintf(out, "%d tools valid for %s\n", a.reg.Len(), report.Provider)
				return nil
			}
			for _, msg := range report.Messages {
				fmt.Fprintln(out, msg)
			}
			return report.Err()
		},
	}
	validate.Flags().StringVarP(&provider, "provider", "p", "", "provider id (default from config)")

	cmd.AddCommand(list, validate)
	return cmd
}

func newCallCmd(load func() (*app, error)) *cobra.Command {
	var callID string
	cmd := &cobra.Command{
		Use:   "call <name> [arguments-json]",
		Short: "Execute one tool call and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()
			req := toolpipe.ToolCallRequest{CallID: callID, Name: args[0]}
			if len(args) == 2 {
				req.Arguments = args[1]
			}
			res := a.exec.ExecuteToolCall(cmd.Context(), req)
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%w: %s", errCallFailed, res.Error.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&callID, "id", "cli", "call id echoed in the result")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, defs []toolpipe.ToolDefinition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTAGS\tDESCRIPTION")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, strings.Join(d.Tags, ","), d.Description)
	}
	return tw.Flush()
}
