package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/api/rpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

const controlTimeout = 10 * time.Second

var (
	controlAddress string

	commandCmd = &cobra.Command{
		Use:   "command TURN_ON_MACHINE|TURN_OFF_MACHINE|PAUSE_MACHINE",
		Short: "Send a command to a running controller over gRPC.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, client *rpc.Client) error {
				if err := client.SendCommand(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s accepted\n", args[0])
				return err
			})
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the machine status of a running controller.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, client *rpc.Client) error {
				status, err := client.GetStatus(ctx)
				if err != nil {
					return err
				}
				out, err := protojson.MarshalOptions{Multiline: true}.Marshal(status)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			})
		},
	}
)

//nolint:gochecknoinits // cobra wiring
func init() {
	for _, c := range []*cobra.Command{commandCmd, statusCmd} {
		c.Flags().StringVar(&controlAddress, "addr", "localhost:50051", "gRPC address of the controller")
	}
}

func withClient(parent context.Context, fn func(context.Context, *rpc.Client) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, controlTimeout)
	defer cancel()

	conn, err := grpc.NewClient(controlAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", controlAddress, err)
	}
	defer conn.Close()

	return fn(ctx, rpc.NewClient(conn))
}
