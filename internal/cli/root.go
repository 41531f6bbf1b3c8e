// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	appconfig "github.com/jhahn/jwtworkbench/internal/config"
	"github.com/jhahn/jwtworkbench/internal/inputresolve"
	"github.com/jhahn/jwtworkbench/internal/secretstore"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/vault"
	"github.com/jhahn/jwtworkbench/pkg/adapters/logger"
	"github.com/jhahn/jwtworkbench/pkg/adapters/metrics"
)

var (
	cfgFile      string
	dataDirFlag  string
	jsonOutput   bool
	noColor      bool
	quiet        bool
	verbose      bool
	noPersist    bool
	appVersion   = "0.1.0"

	globalConfig *appconfig.Config
	svc          *vault.Service
	resolver     = inputresolve.New()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jwtwb",
	Short: "A local-first JWT workbench",
	Long: `jwtwb encodes, verifies, decodes, and inspects JSON Web Signature
tokens, and manages a local vault of projects, keys, and sample tokens.

The CLI and the localhost HTTP UI (jwtwb ui) share the same vault and the
same operational core: nothing either surface does is a special case.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initWorkbench,
	Version:           appVersion,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		handleError(err)
		return apperr.ExitCode(err)
	}
	return 0
}

// ExecuteCore runs the root command with the "ui" subcommand removed, for
// the UI-less binary variant: same argument surface, minus the localhost
// HTTP server nobody wants built into an air-gapped or headless deployment.
func ExecuteCore() int {
	rootCmd.RemoveCommand(uiCmd)
	return Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: workbench.yaml in the default data directory, then the current directory)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "override the workbench data directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON as the sole stdout output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostic output on stderr")
	rootCmd.PersistentFlags().BoolVar(&noPersist, "no-persist", false, "use an in-memory vault for this invocation only")

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(vaultCmd)
}

// initWorkbench builds the shared Service from resolved configuration
// before any subcommand runs. The completion and help commands don't need
// a vault, so failures here are non-fatal for them.
func initWorkbench(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || isCompletionCommand(cmd) {
		return nil
	}

	cfg, err := appconfig.New(cmd.Flags(), cfgFile)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, err, "failed to resolve configuration")
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
		cfg.KeychainDir = cfg.DataDir + "/keychain"
	}
	if noPersist {
		cfg.NoPersist = true
	}
	if jsonOutput {
		cfg.JSON = true
	}
	globalConfig = cfg

	log := logger.NewSlogAdapter(&logger.SlogConfig{Level: logLevelFor(cfg)})

	var metadata store.MetadataStore
	if cfg.NoPersist {
		metadata, err = store.OpenMemory()
	} else {
		if mkErr := os.MkdirAll(cfg.DataDir, 0o700); mkErr != nil {
			return apperr.Wrap(apperr.IOError, mkErr, "failed to create data directory")
		}
		metadata, err = store.Open(cfg.MetadataStorePath())
	}
	if err != nil {
		return apperr.Wrap(apperr.StorageError, err, "failed to open metadata store")
	}

	var secrets secretstore.SecretStore
	if cfg.NoPersist {
		secrets = secretstore.NewMemory()
	} else {
		secrets, err = secretstore.Open(secretstore.Config{
			Backend:     backendFor(cfg.SecretBackend),
			ServiceName: cfg.Service,
			FileDir:     cfg.KeychainDir,
			FilePassphrase: func(string) (string, error) {
				return cfg.SecretPassphrase, nil
			},
		})
		if err != nil {
			return apperr.Wrap(apperr.StorageError, err, "failed to open secret store")
		}
	}

	svc = vault.NewWithMetrics(metadata, secrets, log, metrics.NewPrometheusMetrics())

	if !cfg.NoPersist {
		if swept, sweepErr := svc.SweepOrphanSecrets(cmd.Context()); sweepErr == nil && swept > 0 {
			printVerbose("swept %d orphaned secret(s) with no matching metadata", swept)
		}
	}
	return nil
}

// isCompletionCommand reports whether cmd or any ancestor is cobra's
// built-in "completion" command, which needs no vault.
func isCompletionCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "completion" {
			return true
		}
	}
	return false
}

func backendFor(b appconfig.SecretBackend) secretstore.Backend {
	if b == appconfig.SecretBackendFile {
		return secretstore.BackendEncryptedFile
	}
	return secretstore.BackendOSCredential
}

func logLevelFor(cfg *appconfig.Config) logger.Level {
	switch {
	case cfg.Verbose:
		return logger.LevelDebug
	case cfg.Quiet:
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func printer() *Printer {
	format := "text"
	if globalConfig != nil && globalConfig.JSON {
		format = "json"
	}
	return NewPrinter(format, os.Stdout)
}

// handleError prints an error to stderr in the active output format.
func handleError(err error) {
	p := NewPrinter(outputFormatForError(), os.Stderr)
	_ = p.PrintError(err)
}

func outputFormatForError() string {
	if jsonOutput {
		return "json"
	}
	return "text"
}

// printVerbose prints a message to stderr if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}
