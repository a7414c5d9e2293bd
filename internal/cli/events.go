package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/mq"
)

// NewEventsCmd создаёт команду наблюдения за событиями runs.
func NewEventsCmd(outputFn func() *Output) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow run and instance events from RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()
			logger := slog.Default()

			url := mq.URLFromEnv()
			if url == "" {
				url = mq.DefaultURL()
			}
			conn, err := mq.NewConnection(url, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}

			consumer := mq.NewEventConsumer(conn, mq.EventConsumerConfig{
				Pattern: pattern,
				Logger:  logger,
				Handler: func(_ context.Context, msg *mq.Message) error {
					if out.IsJSON() {
						out.JSON(msg)
						return nil
					}
					out.Text(formatEvent(msg) + "\n")
					return nil
				},
			})

			out.Success(fmt.Sprintf("Listening for events (%s), Ctrl+C to stop", consumer.Pattern()))
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "#", "Routing key pattern (e.g. 'run.*', 'instance.completed')")

	return cmd
}

// formatEvent форматирует событие в одну строку.
func formatEvent(msg *mq.Message) string {
	ts := msg.Timestamp.Format("15:04:05")

	switch msg.Type {
	case mq.MessageTypeRunStarted, mq.MessageTypeRunFinished:
		p, err := mq.ParsePayload[mq.RunEventPayload](msg)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%s %-18s run=%s pipeline=%s status=%s samples=%d", ts, msg.Type, p.RunID, p.Pipeline, p.Status, p.Samples)
		if p.Error != "" {
			line += fmt.Sprintf(" error=%q", p.Error)
		}
		return line

	case mq.MessageTypeInstanceReady, mq.MessageTypeInstanceCompleted:
		p, err := mq.ParsePayload[mq.InstanceEventPayload](msg)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%s %-18s run=%s stage=%s sample=%s status=%s", ts, msg.Type, p.RunID, p.Stage, p.SampleID, p.Status)
		if msg.Type == mq.MessageTypeInstanceCompleted {
			line += fmt.Sprintf(" exit=%d", p.ExitCode)
		}
		if p.Error != "" {
			line += fmt.Sprintf(" error=%q", p.Error)
		}
		return line
	}

	return fmt.Sprintf("%s %-18s id=%s", ts, msg.Type, msg.ID)
}
