package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
)

var cmdTail = cli.Command{
	Name:      "tail",
	Usage:     "follow a stack's events until it reaches a terminal status",
	ArgsUsage: "<stack>",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  FlagInterval,
			Usage: "time between polls",
		},
		cli.DurationFlag{
			Name:  FlagTimeout,
			Usage: "give up after this long (0 means wait forever)",
		},
		cli.BoolFlag{
			Name:  FlagIgnoreMissing,
			Usage: "treat a missing stack as empty instead of failing, for tailing a create that hasn't landed yet",
		},
	},
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return cli.NewExitError("stack name required", 1)
		}

		ctx := newContext(c)
		if timeout := c.Duration(FlagTimeout); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		t := newTailer(c)
		t.Interval = c.Duration(FlagInterval)
		t.IgnoreMissing = c.Bool(FlagIgnoreMissing)

		return t.Tail(ctx, os.Stdout, name)
	},
}

var cmdEvents = cli.Command{
	Name:      "events",
	Usage:     "print a stack's event log",
	ArgsUsage: "<stack>",
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return cli.NewExitError("stack name required", 1)
		}

		events, err := newTailer(c).Snapshot(newContext(c), name)
		if err != nil {
			return err
		}

		for _, e := range events {
			fmt.Printf("%s %s %s %s\n", humanize.Time(e.Timestamp), e.Status, e.Type, e.LogicalID)
		}
		return nil
	},
}
