package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"just_us/internal/client"
	"just_us/internal/domain"
)

func init() {
	gifsCmd.Flags().Int("limit", 8, "number of results")
	gifsCmd.Flags().String("pos", "", "pagination position from a previous page")
	subscriptionsCmd.Flags().Bool("reset", false, "remove every device subscription of the current user")
	subscriptionsCmd.Flags().String("remove", "", "remove the subscription with this endpoint")

	rootCmd.AddCommand(statusCmd, previewCmd, gifsCmd, subscriptionsCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the peer is online or typing",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := s.requestContext(cmd)
		defer cancel()

		// статус спрашивается через websocket, как это делает лента
		stream, err := client.Dial(ctx, s.api.BaseURL(), s.api.Token(), s.log)
		if err != nil {
			return err
		}
		defer stream.Close()

		status, err := stream.CheckStatus(ctx, "")
		if err != nil {
			return err
		}
		peer, err := s.api.Peer(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case status.Online:
			printLine(out, "%s is online", peer.Username)
		case status.LastOnlineAt != nil:
			printLine(out, "%s was last online %s", peer.Username, time.UnixMilli(*status.LastOnlineAt).Local().Format(time.RFC822))
		default:
			printLine(out, "%s is offline", peer.Username)
		}
		if peer.Typing {
			printLine(out, "%s is typing…", peer.Username)
		}
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <url>",
	Short: "Show the link preview the chat would render",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := s.requestContext(cmd)
		defer cancel()

		p, err := s.api.LinkPreview(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printLine(out, "%s", p.Title)
		if p.SiteName != "" {
			printLine(out, "  site:  %s", p.SiteName)
		}
		if p.Description != "" {
			printLine(out, "  about: %s", p.Description)
		}
		printLine(out, "  type:  %s", p.MediaType)
		if len(p.Images) > 0 {
			printLine(out, "  image: %s", p.Images[0])
		}
		return nil
	},
}

var gifsCmd = &cobra.Command{
	Use:   "gifs [query...]",
	Short: "Search GIFs; without a query shows the featured ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := s.requestContext(cmd)
		defer cancel()

		limit, _ := cmd.Flags().GetInt("limit")
		pos, _ := cmd.Flags().GetString("pos")

		query := strings.Join(args, " ")
		var page *domain.GifPage
		if query == "" {
			page, err = s.api.FeaturedGifs(ctx, pos, limit)
		} else {
			page, err = s.api.SearchGifs(ctx, query, pos, limit)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, g := range page.Results {
			printLine(out, "%-20s %s  %s", g.ID, g.URL, g.Description)
		}
		if page.Next != "" {
			printLine(out, "next: --pos %s", page.Next)
		}
		return nil
	},
}

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions [user-id]",
	Short: "List or reset push subscriptions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := s.requestContext(cmd)
		defer cancel()

		out := cmd.OutOrStdout()
		reset, _ := cmd.Flags().GetBool("reset")
		remove, _ := cmd.Flags().GetString("remove")
		if reset || remove != "" {
			if err := s.api.RemovePushSubscription(ctx, remove); err != nil {
				return err
			}
			printLine(out, "subscriptions updated")
			return nil
		}

		userID := ""
		if len(args) == 1 {
			userID = args[0]
		} else {
			me, err := s.api.Me(ctx)
			if err != nil {
				return err
			}
			userID = me.ID
		}

		view, err := s.api.Subscriptions(ctx, userID)
		if err != nil {
			return err
		}
		if view.Subscription != nil {
			printLine(out, "primary: %s", view.Subscription.Endpoint)
		}
		for i, sub := range view.Subscriptions {
			printLine(out, "%d. %s (%s)", i+1, sub.Endpoint, sub.Fingerprint())
		}
		if view.Subscription == nil && len(view.Subscriptions) == 0 {
			fmt.Fprintln(out, "no subscriptions")
		}
		return nil
	},
}
