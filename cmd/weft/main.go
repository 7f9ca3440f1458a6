package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chazu/weft/pkg/dot"
	"github.com/chazu/weft/pkg/graph"
	"github.com/chazu/weft/pkg/script"
)

func main() {
	var (
		format  string
		verbose bool
	)

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:   "weft",
		Short: "Parameter negotiation for statically-sized hardware topologies",
	}
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	renderCmd := &cobra.Command{
		Use:   "render <topology.lisp>",
		Short: "Evaluate a topology script and render the negotiated graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log = log.Level(level)

			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			log.Debug().Str("file", args[0]).Int("bytes", len(source)).Msg("evaluating topology")

			res, evalErrs, err := script.NewEngine().Evaluate(string(source))
			if err != nil {
				return err
			}
			if len(evalErrs) > 0 {
				for _, e := range evalErrs {
					log.Error().Int("line", e.Line).Msg(e.Message)
				}
				return fmt.Errorf("%d error(s) in %s", len(evalErrs), args[0])
			}

			nodes := res.Scope.AllNodes()
			log.Debug().
				Int("nodes", len(nodes)).
				Int("wires", res.Netlist.Len()).
				Int("monitors", len(res.Scope.Monitors())).
				Msg("elaboration complete")

			var out string
			switch format {
			case "dot":
				out, err = dot.Dot(nodes)
			case "graphml":
				out, err = dot.GraphML(nodes)
			case "report":
				var sum *graph.Summary
				sum, err = graph.Summarize(res.Scope)
				if err == nil {
					out = sum.String()
				}
			default:
				return fmt.Errorf("unknown format %q (want dot, graphml or report)", format)
			}
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	renderCmd.Flags().StringVar(&format, "format", "dot", "Output format: dot, graphml or report")

	rootCmd.AddCommand(renderCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("weft failed")
		os.Exit(1)
	}
}
