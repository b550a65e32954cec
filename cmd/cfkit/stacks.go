package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
)

var stackFlags = []cli.Flag{
	cli.StringFlag{
		Name:  FlagFile + ", f",
		Usage: "stackfile describing the stack",
	},
	cli.StringFlag{
		Name:  FlagTemplate + ", t",
		Usage: "path to the template",
	},
	cli.StringSliceFlag{
		Name:  FlagParam,
		Usage: "template parameter as Key=Value, repeatable",
	},
	cli.StringSliceFlag{
		Name:  FlagTag,
		Usage: "stack tag as Key=Value, repeatable",
	},
	cli.StringSliceFlag{
		Name:  FlagCapability,
		Usage: "IAM capability to acknowledge (e.g. CAPABILITY_IAM)",
	},
	cli.StringSliceFlag{
		Name:  FlagNotificationARN,
		Usage: "SNS topic to notify of stack events",
	},
	cli.BoolFlag{
		Name:  FlagDisableRollback,
		Usage: "keep a failed create around for debugging",
	},
	cli.BoolFlag{
		Name:  FlagTail,
		Usage: "follow stack events until the operation finishes",
	},
}

var cmdCreate = cli.Command{
	Name:      "create",
	Usage:     "create a new stack",
	ArgsUsage: "<stack>",
	Flags:     stackFlags,
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		in, err := stackInput(c)
		if err != nil {
			return err
		}

		if err := newStacks(c).Create(ctx, in); err != nil {
			return err
		}
		fmt.Printf("Creating %s\n", in.Name)

		return maybeTail(c, in.Name)
	},
}

var cmdUpdate = cli.Command{
	Name:      "update",
	Usage:     "update an existing stack",
	ArgsUsage: "<stack>",
	Flags:     stackFlags,
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		in, err := stackInput(c)
		if err != nil {
			return err
		}

		if err := newStacks(c).Update(ctx, in); err != nil {
			return err
		}
		fmt.Printf("Updating %s\n", in.Name)

		return maybeTail(c, in.Name)
	},
}

var cmdDeploy = cli.Command{
	Name:      "deploy",
	Usage:     "create the stack if it doesn't exist, update it otherwise",
	ArgsUsage: "<stack>",
	Flags:     stackFlags,
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		in, err := stackInput(c)
		if err != nil {
			return err
		}

		created, err := newStacks(c).Submit(ctx, in)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Creating %s\n", in.Name)
		} else {
			fmt.Printf("Updating %s\n", in.Name)
		}

		return maybeTail(c, in.Name)
	},
}

var cmdDelete = cli.Command{
	Name:      "delete",
	Usage:     "delete a stack",
	ArgsUsage: "<stack>",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  FlagFile + ", f",
			Usage: "stackfile describing the stack",
		},
		cli.BoolFlag{
			Name:  FlagForce,
			Usage: "skip the confirmation prompt",
		},
		cli.BoolFlag{
			Name:  FlagTail,
			Usage: "follow stack events until the delete finishes",
		},
	},
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		name, err := stackName(c)
		if err != nil {
			return err
		}

		if !c.Bool(FlagForce) && !confirm(fmt.Sprintf("Really delete stack %s?", name)) {
			return cli.NewExitError("aborted", 1)
		}

		if err := newStacks(c).Delete(ctx, name); err != nil {
			return err
		}
		fmt.Printf("Deleting %s\n", name)

		return maybeTail(c, name)
	},
}

var cmdDiff = cli.Command{
	Name:      "diff",
	Usage:     "show what would change if the stack were deployed",
	ArgsUsage: "<stack>",
	Flags:     stackFlags,
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		in, err := stackInput(c)
		if err != nil {
			return err
		}

		diff, err := newStacks(c).Diff(ctx, in)
		if err != nil {
			return err
		}
		if diff == "" {
			return nil
		}

		fmt.Print(diff)
		// Mirror diff(1): changes mean a non-zero exit.
		return cli.NewExitError("", 1)
	},
}

var cmdList = cli.Command{
	Name:  "list",
	Usage: "list stacks",
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		stacks, err := newStacks(c).List(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 1, 2, 2, ' ', 0)
		defer w.Flush()
		for _, s := range stacks {
			updated := aws.TimeValue(s.CreationTime)
			if s.LastUpdatedTime != nil {
				updated = *s.LastUpdatedTime
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				aws.StringValue(s.StackName),
				aws.StringValue(s.StackStatus),
				humanize.Time(updated),
			)
		}
		return nil
	},
}

var cmdResources = cli.Command{
	Name:      "resources",
	Usage:     "list the resources a stack provisions",
	ArgsUsage: "<stack>",
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		name, err := stackName(c)
		if err != nil {
			return err
		}

		resources, err := newStacks(c).Resources(ctx, name)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 1, 2, 2, ' ', 0)
		defer w.Flush()
		for _, r := range resources {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				aws.StringValue(r.LogicalResourceId),
				aws.StringValue(r.ResourceType),
				aws.StringValue(r.ResourceStatus),
				aws.StringValue(r.PhysicalResourceId),
			)
		}
		return nil
	},
}

var cmdOutputs = cli.Command{
	Name:      "outputs",
	Usage:     "print a stack's outputs",
	ArgsUsage: "<stack>",
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		name, err := stackName(c)
		if err != nil {
			return err
		}

		outputs, err := newStacks(c).Outputs(ctx, name)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(outputs))
		for k := range outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, outputs[k])
		}
		return nil
	},
}

var cmdValidate = cli.Command{
	Name:      "validate",
	Usage:     "validate a template",
	ArgsUsage: "<template>",
	Action: func(c *cli.Context) error {
		ctx := newContext(c)
		path := c.Args().First()
		if path == "" {
			return cli.NewExitError("template path required", 1)
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if err := newStacks(c).Validate(ctx, raw); err != nil {
			return err
		}
		fmt.Printf("%s is valid\n", path)
		return nil
	},
}

// maybeTail follows the stack's events when --tail was given.
func maybeTail(c *cli.Context, name string) error {
	if !c.Bool(FlagTail) {
		return nil
	}

	t := newTailer(c)
	t.IgnoreMissing = true
	return t.Tail(newContext(c), os.Stdout, name)
}

func confirm(prompt string) bool {
	fmt.Printf("%s (y/N) ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
