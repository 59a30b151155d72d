package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flashbots/lay/client"
	"github.com/flashbots/lay/cmd/common"
	"github.com/spf13/cobra"
)

var (
	configPath string
	relayURL   string
	keyFile    string
	channel    string
	logLevel   string
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "lay",
		Short: "lay - pseudonymous posts over a signing relay",
		Long: `lay publishes Ed25519-signed posts and profiles to a relay and polls it for
new posts. Your public key is your only identity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to YAML config file")
	flags.StringVar(&relayURL, "relay", "", "Relay base URL")
	flags.StringVar(&keyFile, "key", "", "Path to the PEM identity key")
	flags.StringVar(&channel, "channel", "", "Channel to post to and read from")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func addCommands() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command
func Execute(version string) error {
	addCommands()

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig resolves the client configuration with flags applied.
func loadConfig() (*common.ClientConfig, error) {
	cfg, err := common.LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}
	if relayURL != "" {
		cfg.RelayURL = relayURL
	}
	if keyFile != "" {
		cfg.KeyFile = keyFile
	}
	if channel != "" {
		cfg.Channel = channel
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// env is everything a relay-facing subcommand needs.
type env struct {
	cfg   *common.ClientConfig
	log   *slog.Logger
	id    *client.Identity
	relay *client.RelayClient
}

func newEnv(logOut io.Writer) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := common.NewLogger(logOut, cfg.Log)
	if err != nil {
		return nil, err
	}
	sk, err := common.LoadOrGenerateSigningKey(cfg.KeyFile, log)
	if err != nil {
		return nil, err
	}
	id, err := client.NewIdentity(sk, cfg.Origin, nil)
	if err != nil {
		return nil, err
	}
	rc := client.NewRelayClient(cfg.RelayURL, cfg.Timeout)
	rc.PostQueries = cfg.PostQueries
	return &env{cfg: cfg, log: log, id: id, relay: rc}, nil
}
