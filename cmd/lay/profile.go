package main

import (
	"fmt"

	"github.com/flashbots/lay/client"
	"github.com/flashbots/lay/protocol"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage display names",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Publish your display name",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSet,
}

var profileGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show the display name of a key (default: your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfileGet,
}

func init() {
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileGetCmd)
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	profile, err := client.Sign(e.id, protocol.Profile{Name: args[0]})
	if err != nil {
		return err
	}
	if err := e.relay.SubmitProfile(cmd.Context(), profile); err != nil {
		return fmt.Errorf("submitting profile: %w", err)
	}
	return nil
}

func runProfileGet(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	key := e.id.Key()
	if len(args) == 1 {
		key = args[0]
	}

	info, err := client.ResolveProfile(cmd.Context(), e.relay, e.id, key)
	if err != nil {
		return fmt.Errorf("querying profile: %w", err)
	}
	switch {
	case info.Placeholder:
		fmt.Fprintf(cmd.OutOrStdout(), "%s (no profile)\n", info.Name)
	case !info.Verified:
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", client.UnverifiedMark, info.Name)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), info.Name)
	}
	return nil
}
