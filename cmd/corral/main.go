// Command corral runs a single agent task against a sandboxed working
// directory: it hands the prompt to the model, executes the tool calls
// the model makes, and prints the final answer.
package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corralhq/corral/agentloop"
	"github.com/corralhq/corral/modelservice"
)

// errBudgetExhausted distinguishes a run that ran out of iterations from
// a service failure; the two get different exit codes.
var errBudgetExhausted = errors.New("iteration budget exhausted")

type config struct {
	GeminiAPIKey  string `env:"GEMINI_API_KEY,required"`
	SystemPrompt  string `env:"SYSTEM_PROMPT,required"`
	SandboxRoot   string `env:"SANDBOX_ROOT" envDefault:"."`
	MaxFileChars  int    `env:"MAX_FILE_CHARS" envDefault:"10000"`
	MaxIterations int    `env:"MAX_ITERATIONS" envDefault:"20"`
	Model         string `env:"CORRAL_MODEL" envDefault:"gemini-2.5-flash"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errBudgetExhausted) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "corral \"prompt\"",
		Short:         "Run an agent task in a sandboxed working directory",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			log.SetOutput(cmd.ErrOrStderr())
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return run(cmd, args[0], verbose, log)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log each iteration and tool call")
	return cmd
}

func run(cmd *cobra.Command, prompt string, verbose bool, log *logrus.Logger) error {
	// A .env file is a convenience, not a requirement.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Error("configuration")
		return err
	}

	ctx := cmd.Context()

	sandbox, err := agentloop.NewSandbox(cfg.SandboxRoot,
		agentloop.WithMaxFileChars(cfg.MaxFileChars))
	if err != nil {
		log.WithError(err).Error("sandbox")
		return err
	}

	adapter, err := modelservice.NewGeminiAdapter(ctx,
		modelservice.WithAPIKey(cfg.GeminiAPIKey),
		modelservice.WithModel(cfg.Model))
	if err != nil {
		log.WithError(err).Error("model service")
		return err
	}
	service := modelservice.NewClient(modelservice.WithProvider(adapter.Name(), adapter))
	defer service.Close()

	registry := agentloop.NewToolRegistry()
	agentloop.RegisterCoreTools(registry, sandbox)

	loop := agentloop.NewLoop(service, registry, &agentloop.LoopConfig{
		Model:             cfg.Model,
		SystemInstruction: cfg.SystemPrompt,
		MaxIterations:     cfg.MaxIterations,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range loop.Events() {
			log.WithFields(logrus.Fields{
				"run_id": event.RunID,
				"data":   event.Data,
			}).Debug(string(event.Kind))
		}
	}()

	log.WithFields(logrus.Fields{
		"sandbox": sandbox.Root(),
		"model":   cfg.Model,
	}).Debug("starting run")

	result, err := loop.Run(ctx, prompt)
	wg.Wait()
	if err != nil {
		log.WithError(err).Error("run aborted")
		return err
	}

	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Prompt tokens: %d\n", result.Usage.PromptTokens)
		fmt.Fprintf(cmd.ErrOrStderr(), "Response tokens: %d\n", result.Usage.ResponseTokens)
	}

	if result.Reason == agentloop.ReasonBudgetExhausted {
		log.WithField("iterations", result.Iterations).Error("iteration budget exhausted before the model finished")
		return errBudgetExhausted
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.FinalText)
	return nil
}
