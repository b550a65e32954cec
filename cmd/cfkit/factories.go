package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/mattn/go-isatty"
	"github.com/remind101/cfkit"
	"github.com/remind101/cfkit/asg"
	"github.com/remind101/pkg/logger"
	"github.com/urfave/cli"
)

// newContext returns the base context for a command. With --log.level=debug,
// a logfmt logger writing to stderr is attached, and the library logs every
// operation through it.
func newContext(c *cli.Context) context.Context {
	ctx := context.Background()
	if c.GlobalString(FlagLogLevel) == "debug" {
		ctx = logger.WithLogger(ctx, logger.New(log.New(os.Stderr, "", 0), logger.DEBUG))
	}
	return ctx
}

func newConfigProvider(c *cli.Context) client.ConfigProvider {
	config := aws.NewConfig()

	if c.GlobalBool(FlagAWSDebug) {
		config.WithLogLevel(aws.LogDebug)
	}

	return session.New(config)
}

func newStacks(c *cli.Context) *cfkit.Stacks {
	s := cfkit.NewStacks(newConfigProvider(c))
	s.Bucket = c.GlobalString(FlagBucket)
	return s
}

func newTailer(c *cli.Context) *cfkit.Tailer {
	t := cfkit.NewTailer(newConfigProvider(c))
	t.Colorize = isatty.IsTerminal(os.Stdout.Fd())
	return t
}

func newASG(c *cli.Context) *asg.Client {
	return asg.New(newConfigProvider(c))
}

// stackName returns the stack name for a command, either the first argument
// or the name from --file.
func stackName(c *cli.Context) (string, error) {
	if name := c.Args().First(); name != "" {
		return name, nil
	}
	if path := c.String(FlagFile); path != "" {
		in, err := cfkit.LoadStackfile(path)
		if err != nil {
			return "", err
		}
		return in.Name, nil
	}
	return "", errors.New("stack name required")
}

// stackInput assembles a StackInput from either a stackfile (--file) or the
// individual flags. Flags layer on top of the stackfile, so a one-off
// parameter override doesn't need a file edit.
func stackInput(c *cli.Context) (cfkit.StackInput, error) {
	var in cfkit.StackInput

	if path := c.String(FlagFile); path != "" {
		var err error
		in, err = cfkit.LoadStackfile(path)
		if err != nil {
			return in, err
		}
	}

	if name := c.Args().First(); name != "" {
		in.Name = name
	}
	if in.Name == "" {
		return in, errors.New("stack name required")
	}

	if path := c.String(FlagTemplate); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return in, err
		}
		in.Template = raw
	}

	params, err := parseKeyVals(c.StringSlice(FlagParam))
	if err != nil {
		return in, err
	}
	if in.Parameters == nil && len(params) > 0 {
		in.Parameters = make(map[string]string)
	}
	for k, v := range params {
		in.Parameters[k] = v
	}

	tags, err := parseKeyVals(c.StringSlice(FlagTag))
	if err != nil {
		return in, err
	}
	if in.Tags == nil && len(tags) > 0 {
		in.Tags = make(map[string]string)
	}
	for k, v := range tags {
		in.Tags[k] = v
	}

	if caps := c.StringSlice(FlagCapability); len(caps) > 0 {
		in.Capabilities = caps
	}
	if arns := c.StringSlice(FlagNotificationARN); len(arns) > 0 {
		in.NotificationARNs = arns
	}
	if c.Bool(FlagDisableRollback) {
		in.DisableRollback = true
	}

	return in, nil
}

// parseKeyVals parses repeated Key=Value flag values into a map.
func parseKeyVals(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed Key=Value pair %q", p)
		}
		out[k] = v
	}
	return out, nil
}
