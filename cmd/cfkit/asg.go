package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/urfave/cli"
)

var cmdScale = cli.Command{
	Name:      "scale",
	Usage:     "set the desired capacity of an auto scaling group",
	ArgsUsage: "<group> <count>",
	Action: func(c *cli.Context) error {
		group := c.Args().Get(0)
		count := c.Args().Get(1)
		if group == "" || count == "" {
			return cli.NewExitError("usage: cfkit scale <group> <count>", 1)
		}

		desired, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			return fmt.Errorf("bad count %q: %v", count, err)
		}

		if err := newASG(c).Scale(newContext(c), group, desired); err != nil {
			return err
		}
		fmt.Printf("Scaling %s to %d\n", group, desired)
		return nil
	},
}

var cmdResize = cli.Command{
	Name:      "resize",
	Usage:     "change the min/max bounds of an auto scaling group",
	ArgsUsage: "<group>",
	Flags: []cli.Flag{
		cli.Int64Flag{
			Name:  FlagMinSize,
			Usage: "minimum group size",
		},
		cli.Int64Flag{
			Name:  FlagMaxSize,
			Usage: "maximum group size",
		},
	},
	Action: func(c *cli.Context) error {
		group := c.Args().First()
		if group == "" {
			return cli.NewExitError("group name required", 1)
		}

		min, max := c.Int64(FlagMinSize), c.Int64(FlagMaxSize)
		if max < min {
			return cli.NewExitError("max must be >= min", 1)
		}

		if err := newASG(c).Resize(newContext(c), group, min, max); err != nil {
			return err
		}
		fmt.Printf("Resizing %s to %d-%d\n", group, min, max)
		return nil
	},
}

var cmdGroups = cli.Command{
	Name:  "groups",
	Usage: "list auto scaling groups",
	Action: func(c *cli.Context) error {
		groups, err := newASG(c).Groups(newContext(c))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 1, 2, 2, ' ', 0)
		defer w.Flush()
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%d/%d-%d\t%d instances\n",
				aws.StringValue(g.AutoScalingGroupName),
				aws.Int64Value(g.DesiredCapacity),
				aws.Int64Value(g.MinSize),
				aws.Int64Value(g.MaxSize),
				len(g.Instances),
			)
		}
		return nil
	},
}

var cmdInstances = cli.Command{
	Name:      "instances",
	Usage:     "list the running instances of an auto scaling group, with addresses",
	ArgsUsage: "<group>",
	Action: func(c *cli.Context) error {
		group := c.Args().First()
		if group == "" {
			return cli.NewExitError("group name required", 1)
		}

		instances, err := newASG(c).Instances(newContext(c), group)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 1, 2, 2, ' ', 0)
		defer w.Flush()
		for _, i := range instances {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", i.ID, i.Type, i.Zone, i.PrivateIP, i.PublicIP)
		}
		return nil
	},
}
