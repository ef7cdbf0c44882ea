// streamtail tails a DynamoDB change stream and prints every record as it
// arrives, checkpointing its position so a restart resumes where it left off.
//
// # Usage
//
//	streamtail --stream arn:aws:dynamodb:...:table/docs/stream/...
//	streamtail --from latest
//	streamtail --checkpoint ./data
//
// Defaults can be placed in a streamtail.yaml found by walking up from the
// working directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/okvist/vogels/stream"
	"github.com/okvist/vogels/stream/checkpoint"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "streamtail: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := LoadConfig()

	var (
		streamARN = flag.String("stream", cfg.StreamARN, "stream ARN to tail")
		region    = flag.String("region", cfg.Region, "AWS region")
		ckptDir   = flag.String("checkpoint", cfg.CheckpointDir, "checkpoint directory (empty for in-memory)")
		from      = flag.String("from", "trim-horizon", "start position when no checkpoint exists: trim-horizon or latest")
		interval  = flag.Duration("interval", time.Second, "sleep between polls when the stream is idle")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *streamARN == "" {
		return errors.New("a stream ARN is required (--stream or streamtail.yaml)")
	}
	var startPos stream.Position
	switch *from {
	case "trim-horizon":
		startPos = stream.TrimHorizon()
	case "latest":
		startPos = stream.Latest()
	default:
		return fmt.Errorf("unknown start position %q", *from)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var loadOpts []func(*config.LoadOptions) error
	if *region != "" {
		loadOpts = append(loadOpts, config.WithRegion(*region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	api := dynamodbstreams.NewFromConfig(awsCfg)

	ckpt, err := checkpoint.New(checkpoint.StoreOptions{Path: *ckptDir})
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer ckpt.Close()

	coord := stream.New(*streamARN, api, logger)
	if err := position(ctx, coord, ckpt, *streamARN, startPos, logger); err != nil {
		return err
	}

	heartbeat := time.NewTicker(time.Minute)
	defer heartbeat.Stop()
	save := time.NewTicker(10 * time.Second)
	defer save.Stop()

	logger.Info("tailing stream", "stream", *streamARN)
	for {
		select {
		case <-ctx.Done():
			if err := ckpt.Save(coord.Token()); err != nil {
				return fmt.Errorf("final checkpoint: %w", err)
			}
			logger.Info("checkpoint saved, exiting")
			return nil
		case <-heartbeat.C:
			if err := coord.Heartbeat(ctx); err != nil {
				logger.Warn("heartbeat failed", "error", err)
			}
			continue
		case <-save.C:
			if err := ckpt.Save(coord.Token()); err != nil {
				logger.Warn("checkpoint save failed", "error", err)
			}
			continue
		default:
		}

		rec, err := coord.Next(ctx)
		if errors.Is(err, stream.ErrPositionLost) {
			logger.Warn("position fell out of retention, restarting from trim horizon")
			if err := coord.MoveTo(ctx, stream.TrimHorizon()); err != nil {
				return fmt.Errorf("reposition: %w", err)
			}
			continue
		}
		if err != nil {
			return err
		}
		if rec == nil {
			select {
			case <-ctx.Done():
			case <-time.After(*interval):
			}
			continue
		}
		printRecord(*rec)
	}
}

// position restores from the checkpoint when one exists, otherwise seeds the
// coordinator at the requested start position.
func position(ctx context.Context, coord *stream.Coordinator, ckpt *checkpoint.Store, arn string, start stream.Position, logger *slog.Logger) error {
	token, err := ckpt.Load(arn)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		logger.Info("no checkpoint, starting fresh", "from", start.Kind)
		return coord.MoveTo(ctx, start)
	}
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	logger.Info("resuming from checkpoint")
	return coord.Restore(ctx, token)
}

func printRecord(r stream.Record) {
	fmt.Printf("%s %-6s shard=%s seq=%s %s\n",
		r.ApproximateCreationTime.Format(time.RFC3339),
		r.EventType,
		r.ShardID,
		r.SequenceNumber,
		formatKeys(r.Keys))
}

// formatKeys renders the key attributes of a record on one line, in stable
// order.
func formatKeys(keys map[string]streamtypes.AttributeValue) string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(keys[k])))
	}
	return strings.Join(parts, " ")
}

func formatValue(av streamtypes.AttributeValue) string {
	switch v := av.(type) {
	case *streamtypes.AttributeValueMemberS:
		return v.Value
	case *streamtypes.AttributeValueMemberN:
		return v.Value
	case *streamtypes.AttributeValueMemberB:
		return fmt.Sprintf("%x", v.Value)
	default:
		return fmt.Sprintf("%v", v)
	}
}
