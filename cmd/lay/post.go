package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flashbots/lay/client"
	"github.com/flashbots/lay/protocol"
	"github.com/spf13/cobra"
)

var postCmd = &cobra.Command{
	Use:   "post <text>",
	Short: "Publish a post",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPost,
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Print the posts currently on the relay",
	Args:  cobra.NoArgs,
	RunE:  runRead,
}

func init() {
	postCmd.Flags().StringToString("meta", nil, "Metadata key=value pairs")
	readCmd.Flags().Bool("json", false, "Print raw envelopes as JSON")
	readCmd.Flags().Int("last", 0, "Only print the last N posts")
}

func runPost(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	meta, _ := cmd.Flags().GetStringToString("meta")
	var metadata protocol.Metadata
	if len(meta) > 0 {
		metadata = make(protocol.Metadata, len(meta))
		for k, v := range meta {
			metadata[k] = v
		}
	}

	post, err := client.Sign(e.id, protocol.Post{
		Channel:  e.cfg.Channel,
		Content:  strings.Join(args, " "),
		Metadata: metadata,
	})
	if err != nil {
		return err
	}
	if err := e.relay.SubmitPost(cmd.Context(), post); err != nil {
		return fmt.Errorf("submitting post: %w", err)
	}
	e.log.Debug("post accepted", "signature", post.Signature)
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	req, err := client.Sign(e.id, protocol.PostRequest{Channel: e.cfg.Channel})
	if err != nil {
		return err
	}
	posts, err := e.relay.QueryPosts(ctx, req)
	if err != nil {
		return fmt.Errorf("querying posts: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(posts)
	}

	view := client.NewView(client.ViewConfig{})
	view.Merge(posts)
	for _, key := range view.Observe(posts) {
		info, err := client.ResolveProfile(ctx, e.relay, e.id, key)
		if err != nil {
			e.log.Warn("profile lookup failed", "key", key, "err", err)
		}
		view.SetProfile(key, info)
	}

	msgs := view.Messages()
	if last, _ := cmd.Flags().GetInt("last"); last > 0 {
		msgs = view.Window(last)
	}
	for _, msg := range msgs {
		fmt.Fprintln(cmd.OutOrStdout(), client.FormatMessage(view, msg))
	}
	return nil
}
