package main

import (
	"fmt"

	"github.com/flashbots/lay/crypto"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new identity key",
	Args:  cobra.NoArgs,
	RunE:  runKeygen,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the public key of the identity",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	keygenCmd.Flags().Bool("force", false, "Overwrite an existing key")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	pk, sk, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	if err := crypto.SavePrivateKey(cfg.KeyFile, sk, force); err != nil {
		return fmt.Errorf("saving key (use --force to replace): %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n%s\n", cfg.KeyFile, pk.String())
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), e.id.Key())
	return nil
}
