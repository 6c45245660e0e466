package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ictengine/ictalert/internal/notifier"
	"github.com/ictengine/ictalert/internal/types"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow alerts published on the Redis channel",
	RunE:  runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Channels.Redis == nil {
		return fmt.Errorf("tail requires channels.redis in %s", configPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newRedisClient(cfg.Channels.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	channel := cfg.Channels.Redis.Channel
	if channel == "" {
		channel = notifier.DefaultRedisChannel
	}

	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "following %s on %s\n", channel, cfg.Channels.Redis.Addr)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			printRecord(out, msg.Payload)
		}
	}
}

func printRecord(out io.Writer, payload string) {
	var rec types.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		fmt.Fprintln(out, payload)
		return
	}

	symbol := ""
	if rec.Symbol != nil {
		symbol = " " + *rec.Symbol
	}
	ts := time.Unix(0, int64(rec.Timestamp*float64(time.Second)))
	line := fmt.Sprintf("%s %-8s %s%s: %s", ts.Format("15:04:05"), rec.Severity, rec.Category, symbol, rec.Message)
	if rec.Count > 1 {
		line += fmt.Sprintf(" (x%d)", rec.Count)
	}
	fmt.Fprintln(out, line)
}
