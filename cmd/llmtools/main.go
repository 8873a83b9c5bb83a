// Package main provides the llmtools CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/llmtools/cli"
	"github.com/richinex/llmtools/internal/errchain"
	"github.com/richinex/llmtools/internal/logger"
)

var (
	// Global flags
	backend string
	dbPath  string
	verbose int
	quiet   int
	debug   bool

	log = logger.NewNop()
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "llmtools",
		Short: "Apply LLM operations to documents",
		Long: `A CLI tool for running prompt templates over documents with a local
llama.cpp model or a remote LLM API.

Local generations are watched for repetition loops and stopped early;
the output then ends in <|loop_detected|>.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger.New(logger.LevelFromVerbosity(verbose, quiet, debug))
			if err != nil {
				return err
			}
			log = l
			log.Debug("invoked", "command", cmd.CommandPath(), "args", args)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "LLM backend (localllama, openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Run history database (default $LLMTOOLS_HISTORY, empty disables history)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase verbosity of output")
	rootCmd.PersistentFlags().CountVarP(&quiet, "quiet", "q", "Decrease verbosity of output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Show the full error chain on failure")

	// Add commands
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(postprocessCmd())
	rootCmd.AddCommand(promptCmd())
	rootCmd.AddCommand(historyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	log.Sync()

	if err != nil {
		fmt.Fprintln(os.Stderr, errchain.Render(err, debug))
		os.Exit(1)
	}
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.Backend = backend
	opts.DBPath = dbPath
	opts.Log = log
	return opts
}

func applyCmd() *cobra.Command {
	var ao cli.ApplyOptions

	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply a set of operations to a document",
		Long: `Render every template of an operation set against the document and
run the resulting prompts in order, template by template.

The set is a directory of <name>-<lang>.yaml templates under the
template directory, or any path containing a '/'. Each template's meta
section chooses how the document is split (none, paragraph, headline).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				ao.Input = args[0]
			}
			return cli.Apply(cmd.Context(), ao, options())
		},
	}

	cmd.Flags().StringVarP(&ao.Operations, "operations", "p", "review", "Operation set name, or a directory path containing '/'")
	cmd.Flags().StringVar(&ao.TemplateDir, "templates", "", "Template directory (default $LLMTOOLS_PROMPTS or ./prompts)")
	cmd.Flags().StringVarP(&ao.Lang, "lang", "l", "", "Template language (default $LLMTOOLS_LANG or en)")
	cmd.Flags().BoolVar(&ao.AllLanguages, "all-langs", false, "Use every template regardless of language")
	cmd.Flags().StringVarP(&ao.Split, "split", "s", "", "Split mode when a template does not set one (none, paragraph, headline)")
	cmd.Flags().IntVar(&ao.SplitLevel, "split-level", 0, "Headline level when a template does not set one (default 2)")
	cmd.Flags().StringVar(&ao.Separator, "separator", "\n", "Text appended after every prompt output")
	cmd.Flags().StringVarP(&ao.Outfile, "outfile", "o", "", "File to write (default stdout)")
	cmd.Flags().StringVar(&ao.SavePrompts, "save-prompts", "", "Directory to save executed prompts and outputs to")

	return cmd
}

func postprocessCmd() *cobra.Command {
	var po cli.PostprocessOptions

	cmd := &cobra.Command{
		Use:   "postprocess [file]",
		Short: "Postprocess and translate extracted markdown",
		Long: `Run the postprocess-<lang>.yaml template over a markdown document one
headline section at a time, and optionally translate-<target>.yaml after
it. Each section keeps its original trailing newlines.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				po.Input = args[0]
			}
			return cli.Postprocess(cmd.Context(), po, options())
		},
	}

	cmd.Flags().StringVar(&po.TemplateDir, "templates", "", "Template directory (default $LLMTOOLS_PROMPTS or ./prompts)")
	cmd.Flags().StringVarP(&po.Lang, "lang", "l", "", "Language the document is written in")
	cmd.Flags().IntVarP(&po.Level, "split", "s", 2, "Headline level to split at (0 = all text at once)")
	cmd.Flags().BoolVarP(&po.Postprocess, "postprocess", "p", true, "Run the postprocessing step")
	cmd.Flags().StringVarP(&po.Translate, "translate", "t", "", "Translate the output to this language")
	cmd.Flags().StringVarP(&po.Outfile, "outfile", "o", "", "File to write (default stdout)")

	return cmd
}

func promptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Inspect saved prompts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <file.prompt>",
		Short: "Print a saved prompt with its meta, output and deltas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowPrompt(args[0], options())
		},
	})

	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit  int
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or the prompts of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			if remove {
				if runID == "" {
					return fmt.Errorf("--delete needs a run id")
				}
				return cli.DeleteRun(cmd.Context(), runID, options())
			}
			return cli.History(cmd.Context(), runID, limit, options())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the given run and its prompts")

	return cmd
}
