package client

import (
	"encoding/json"
	"fmt"

	transports "github.com/rzbill/esdb/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// getTransport is swapped by tests.
var getTransport = func() transports.StreamsTransport {
	return transports.NewGrpcTransport(dialGRPCContext)
}

// NewStreamCommand constructs the `stream` command group and subcommands.
func NewStreamCommand() *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Stream operations"}
	streamCmd.AddCommand(
		newStreamAppendCommand(),
		newStreamDeleteCommand(),
		newStreamStateCommand(),
	)
	return streamCmd
}

// newStreamAppendCommand constructs the `stream append` subcommand.
func newStreamAppendCommand() *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append events to a stream under an expected version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _ := cmd.Flags().GetString("stream")
			expected, _ := cmd.Flags().GetString("expected")
			typ, _ := cmd.Flags().GetString("type")
			data, _ := cmd.Flags().GetStringArray("data")
			meta, _ := cmd.Flags().GetString("metadata")
			eventID, _ := cmd.Flags().GetString("event-id")
			raw, _ := cmd.Flags().GetBool("raw")

			if eventID != "" && len(data) > 1 {
				return fmt.Errorf("--event-id requires a single --data")
			}
			events := make([]transports.Event, 0, len(data))
			for _, d := range data {
				events = append(events, transports.Event{
					EventID:  eventID,
					Type:     typ,
					Data:     []byte(d),
					Metadata: []byte(meta),
					IsJSON:   !raw && json.Valid([]byte(d)),
				})
			}
			res, err := getTransport().Append(cmd.Context(), st, expected, events)
			if err != nil {
				return err
			}
			return printResult(cmd, "append", res)
		},
	}
	appendCmd.Flags().String("stream", "", "Stream")
	appendCmd.Flags().String("expected", "any", "Expected version: any|no_stream|empty_stream|stream_exists|<revision>")
	appendCmd.Flags().String("type", "", "Event type")
	appendCmd.Flags().StringArray("data", nil, "Event data; repeat for a multi-event batch")
	appendCmd.Flags().String("metadata", "", "Event metadata, applied to every event")
	appendCmd.Flags().String("event-id", "", "Event id (uuid); generated when empty")
	appendCmd.Flags().Bool("raw", false, "Store data as binary even when it parses as JSON")
	_ = appendCmd.MarkFlagRequired("stream")
	_ = appendCmd.MarkFlagRequired("type")
	return appendCmd
}

// newStreamDeleteCommand constructs the `stream delete` subcommand.
func newStreamDeleteCommand() *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Soft delete a stream, or tombstone it with --hard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _ := cmd.Flags().GetString("stream")
			expected, _ := cmd.Flags().GetString("expected")
			hard, _ := cmd.Flags().GetBool("hard")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if hard && !confirm {
				return fmt.Errorf("hard delete is permanent; pass --confirm")
			}
			res, err := getTransport().Delete(cmd.Context(), st, expected, hard)
			if err != nil {
				return err
			}
			return printResult(cmd, "delete", res)
		},
	}
	deleteCmd.Flags().String("stream", "", "Stream")
	deleteCmd.Flags().String("expected", "any", "Expected version: any|no_stream|empty_stream|stream_exists|<revision>")
	deleteCmd.Flags().Bool("hard", false, "Hard delete (stream can never be written again)")
	deleteCmd.Flags().Bool("confirm", false, "Confirm a hard delete")
	_ = deleteCmd.MarkFlagRequired("stream")
	return deleteCmd
}

// newStreamStateCommand constructs the `stream state` subcommand.
func newStreamStateCommand() *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Show the revision and deletion state of a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _ := cmd.Flags().GetString("stream")
			state, err := getTransport().State(cmd.Context(), st)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
	stateCmd.Flags().String("stream", "", "Stream")
	_ = stateCmd.MarkFlagRequired("stream")
	return stateCmd
}

// printResult prints res as JSON and turns rejections into a command error.
func printResult(cmd *cobra.Command, op string, res transports.WriteResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Result != "success" {
		return fmt.Errorf("%s rejected: %s", op, res.Result)
	}
	return nil
}
