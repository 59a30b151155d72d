package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/lay/client"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive client: type to post, /name to set your name, /quit to leave",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().String("log-file", "", "Write logs to this file instead of stderr")
}

func runChat(cmd *cobra.Command, args []string) error {
	logOut := cmd.ErrOrStderr()
	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}

	e, err := newEnv(logOut)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	poller := client.NewPoller(e.relay, e.id, client.PollerConfig{
		Interval: e.cfg.PollInterval,
		Channel:  e.cfg.Channel,
		Capacity: e.cfg.ChannelCapacity,
	}, e.log)
	view := client.NewView(client.ViewConfig{GuestRetryAfter: e.cfg.GuestRetryAfter})
	renderer := &client.LineRenderer{W: cmd.OutOrStdout(), Height: e.cfg.WindowHeight}
	session := client.NewSession(view, poller.Commands(), poller.Updates(), renderer, e.cfg.Channel, e.log)

	// the poller only stops on Exit, so a signal reaches it through the session
	go poller.Run(context.WithoutCancel(ctx))

	e.log.Info("chat started", "relay", e.cfg.RelayURL, "key", e.id.Key(), "channel", e.cfg.Channel)
	return session.Run(ctx, cmd.InOrStdin())
}
