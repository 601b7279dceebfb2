package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ruralcare/telemed/pkg/call"
)

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to a running server the way the mobile app does",
	}
	cmd.PersistentFlags().String("token", os.Getenv("TELEMED_TOKEN"), "Bearer token (defaults to $TELEMED_TOKEN)")
	cmd.AddCommand(watchCmd())
	cmd.AddCommand(completeCmd())
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the relay and print notifications and room activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, _ := cmd.Flags().GetString("url")
			token, _ := cmd.Flags().GetString("token")
			topics, _ := cmd.Flags().GetStringSlice("topic")
			room, _ := cmd.Flags().GetString("room")

			logger := newLogger("development")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sig, err := call.DialSignaler(ctx, wsURL, token, logger)
			if err != nil {
				return err
			}
			defer sig.Close()
			logger.Info().Str("connection", sig.ID()).Msg("connected to relay")

			if len(topics) > 0 {
				if err := sig.Subscribe(ctx, topics...); err != nil {
					return err
				}
			}
			if room != "" {
				if err := sig.Join(ctx, room); err != nil {
					return err
				}
			}
			return watch(ctx, sig.Events(), logger)
		},
	}
	cmd.Flags().String("url", "ws://localhost:8080/ws", "Relay websocket URL")
	cmd.Flags().StringSlice("topic", nil, "Notification topic to subscribe to (repeatable)")
	cmd.Flags().String("room", "", "Call room to join")
	return cmd
}

// watch logs relay events until ctx ends or the relay drops the connection.
func watch(ctx context.Context, events <-chan call.SignalEvent, logger zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case call.Notification:
				logger.Info().Str("event", ev.Name).RawJSON("data", rawOrNull(ev.Data)).Msg("notification")
			case call.PeerJoined:
				logger.Info().Str("peer", ev.From).Msg("peer joined")
			case call.PeerLeft:
				logger.Info().Str("peer", ev.From).Msg("peer left")
			case call.SignalPayload:
				logger.Info().Str("peer", ev.From).RawJSON("data", rawOrNull(ev.Data)).Msg("signal")
			case call.RelayError:
				logger.Warn().Str("code", ev.Code).Str("event", ev.Event).Msg(ev.Message)
			case call.Disconnected:
				return fmt.Errorf("relay closed the connection")
			}
		}
	}
}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <appointment-id>",
		Short: "Mark an appointment completed after a call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _ := cmd.Flags().GetString("api")
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := call.NewHTTPCompleter(baseURL, token, nil).Complete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("completed", args[0])
			return nil
		},
	}
	cmd.Flags().String("api", "http://localhost:8080", "API base URL")
	return cmd
}
