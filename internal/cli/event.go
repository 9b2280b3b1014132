package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flowgraph/internal/client"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/taint"
)

var (
	commFromPID int32
	commFromUID int32
	commToPID   int32
	commToUID   int32
	commBytes   int32
	commTags    []string
	commMask    int32
)

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventSpawnCmd, eventExitCmd, eventNameCmd, eventCommCmd)

	f := eventCommCmd.Flags()
	f.Int32Var(&commFromPID, "from-pid", 0, "Sending process")
	f.Int32Var(&commFromUID, "from-uid", 0, "Sending UID")
	f.Int32Var(&commToPID, "to-pid", 0, "Receiving process")
	f.Int32Var(&commToUID, "to-uid", 0, "Receiving UID")
	f.Int32Var(&commBytes, "bytes", 0, "Transfer size")
	f.StringSliceVar(&commTags, "tag", nil, "Taint tag (repeatable): contacts, sms, bit:N, 0x200")
	f.Int32Var(&commMask, "mask", 0, "Raw taint tag mask, combined with --tag")
	eventCommCmd.MarkFlagRequired("from-uid")
	eventCommCmd.MarkFlagRequired("to-uid")
	eventCommCmd.MarkFlagRequired("bytes")
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Send lifecycle and communication events to a running service",
}

var eventSpawnCmd = &cobra.Command{
	Use:   "spawn <pid> <uid>",
	Short: "Report a process start",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, uid, err := parsePIDUID(args)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Spawn(ctx, pid, uid)
		})
	},
}

var eventExitCmd = &cobra.Command{
	Use:   "exit <pid> <uid>",
	Short: "Report a process exit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, uid, err := parsePIDUID(args)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Exit(ctx, pid, uid)
		})
	},
}

var eventNameCmd = &cobra.Command{
	Use:   "name <pid> <name>",
	Short: "Set a process display name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseInt32(args[0], "pid")
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.SetName(ctx, model.PID(pid), args[1])
		})
	},
}

var eventCommCmd = &cobra.Command{
	Use:   "comm",
	Short: "Report a tagged transfer between two processes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := tagMask(commTags, commMask)
		if err != nil {
			return err
		}
		comm := flowgraph.Communication{
			FromPID: model.PID(commFromPID),
			FromUID: model.Principal(commFromUID),
			ToPID:   model.PID(commToPID),
			ToUID:   model.Principal(commToUID),
			Size:    commBytes,
			TagMask: mask,
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Communicate(ctx, comm)
		})
	},
}

func tagMask(refs []string, mask int32) (int32, error) {
	for _, ref := range refs {
		tag, err := taint.ParseTag(ref)
		if err != nil {
			return 0, err
		}
		mask |= int32(tag.Mask())
	}
	return mask, nil
}

func parsePIDUID(args []string) (model.PID, model.Principal, error) {
	pid, err := parseInt32(args[0], "pid")
	if err != nil {
		return 0, 0, err
	}
	uid, err := parseInt32(args[1], "uid")
	if err != nil {
		return 0, 0, err
	}
	return model.PID(pid), model.Principal(uid), nil
}

func parseInt32(s, what string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return int32(n), nil
}

// withClient dials the service and maps connectivity failures to exit 10.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	c, err := client.New(serviceAddr)
	if err != nil {
		return &ExitError{Code: ExitServiceUnreachable, Err: err}
	}
	defer c.Close()

	if err := fn(context.Background(), c); err != nil {
		if client.Unreachable(err) {
			return &ExitError{Code: ExitServiceUnreachable, Err: fmt.Errorf("flowgraph service not reachable at %s: %w", serviceAddr, err)}
		}
		return err
	}
	return nil
}
