package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"adichat/backend/chat/models"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print chat events as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			err = s.client.Subscribe(ctx, func(e models.Event) {
				switch e.Type {
				case models.EventMessagesAppended:
					fmt.Fprintf(out, "%s %s (%d messages)\n", e.Type, e.ChatID, len(e.Messages))
				default:
					fmt.Fprintf(out, "%s %s %s\n", e.Type, e.ChatID, e.Name)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
