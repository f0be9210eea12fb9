package ctl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"inferd/pkg/types"
)

// Config carries the persistent flag values shared by all subcommands.
type Config struct {
	Server string
	LogLvl string
}

// BuildRootCmd constructs the inferctl command tree.
func BuildRootCmd() *cobra.Command {
	cfg := &Config{
		Server: envStr("INFERD_SERVER", "http://127.0.0.1:8000"),
		LogLvl: envStr("INFERCTL_LOG_LEVEL", "info"),
	}

	root := &cobra.Command{
		Use:           "inferctl",
		Short:         "Control a running inferd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfg.Server, "server", cfg.Server, "Base URL of the inferd daemon (defaults INFERD_SERVER)")
	root.PersistentFlags().StringVar(&cfg.LogLvl, "log-level", cfg.LogLvl, "Log level: debug|info|warn|error")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		SetLogLevel(cfg.LogLvl)
	}

	client := func() *Client { return NewClient(cfg.Server) }

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Show resident instances and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := client().Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("status: %s\n", h.Status)
			if len(h.AllModelsLoaded) == 0 {
				fmt.Println("no models loaded")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tTYPE\tDEVICE\tBACKEND\tLAST USE")
			for _, lm := range h.AllModelsLoaded {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					lm.ModelName, lm.Type, lm.Device, lm.BackendURL,
					time.Unix(lm.LastUse, 0).Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	var showAll bool
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List downloaded models (--all includes the full catalog)",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := client().Models(cmd.Context(), showAll)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tRECIPE\tDOWNLOADED")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%v\n", m.Name, m.Recipe, m.Downloaded)
			}
			return tw.Flush()
		},
	}
	modelsCmd.Flags().BoolVar(&showAll, "all", false, "Include models that are not downloaded")

	var loadReq types.LoadRequest
	var loadArgs string
	loadCmd := &cobra.Command{
		Use:   "load <model>",
		Short: "Load a model, waiting until its backend is ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadReq.ModelName = args[0]
			if loadArgs != "" {
				loadReq.LlamacppArgs = strings.Fields(loadArgs)
			}
			info("loading %s", loadReq.ModelName)
			if err := client().Load(cmd.Context(), loadReq); err != nil {
				return err
			}
			fmt.Printf("loaded %s\n", loadReq.ModelName)
			return nil
		},
	}
	loadCmd.Flags().StringVar(&loadReq.Checkpoint, "checkpoint", "", "Checkpoint path overriding the catalog entry")
	loadCmd.Flags().StringVar(&loadReq.Recipe, "recipe", "", "Engine recipe, e.g. llamacpp-vulkan")
	loadCmd.Flags().IntVar(&loadReq.CtxSize, "ctx-size", 0, "Context size override")
	loadCmd.Flags().StringVar(&loadReq.LlamacppBackend, "llamacpp-backend", "", "llama.cpp backend variant")
	loadCmd.Flags().StringVar(&loadArgs, "llamacpp-args", "", "Extra llama-server arguments")

	unloadCmd := &cobra.Command{
		Use:   "unload [model]",
		Short: "Unload one model, or every resident model when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if err := client().Unload(cmd.Context(), name); err != nil {
				return err
			}
			if name == "" {
				fmt.Println("unloaded all models")
			} else {
				fmt.Printf("unloaded %s\n", name)
			}
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the latest telemetry snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if s.ModelName == "" {
				fmt.Println("no telemetry yet")
				return nil
			}
			fmt.Printf("model: %s\n", s.ModelName)
			fmt.Printf("input tokens: %d\n", s.Telemetry.InputTokens)
			fmt.Printf("output tokens: %d\n", s.Telemetry.OutputTokens)
			fmt.Printf("time to first token: %.3fs\n", s.Telemetry.TimeToFirstToken)
			fmt.Printf("tokens per second: %.1f\n", s.Telemetry.TokensPerSecond)
			return nil
		},
	}

	var noStream bool
	chatCmd := &cobra.Command{
		Use:   "chat <model> <prompt...>",
		Short: "Send one chat turn to a model, loading it on demand",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := args[0]
			prompt := strings.Join(args[1:], " ")
			return client().Chat(cmd.Context(), model, prompt, !noStream, os.Stdout)
		},
	}
	chatCmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full response instead of streaming")

	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until the daemon answers health checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return client().WaitHealthy(ctx, 30*time.Second)
		},
	}

	root.AddCommand(healthCmd, modelsCmd, loadCmd, unloadCmd, statsCmd, chatCmd, waitCmd)

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	root.AddCommand(completionCmd)

	return root
}
