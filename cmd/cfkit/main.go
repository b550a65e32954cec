package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

const Version = "0.3.0"

const (
	FlagBucket   = "bucket"
	FlagLogLevel = "log.level"
	FlagAWSDebug = "aws.debug"

	FlagFile            = "file"
	FlagTemplate        = "template"
	FlagParam           = "param"
	FlagTag             = "tag"
	FlagCapability      = "capability"
	FlagNotificationARN = "notification-arn"
	FlagDisableRollback = "disable-rollback"
	FlagForce           = "force"
	FlagTail            = "tail"
	FlagInterval        = "interval"
	FlagTimeout         = "timeout"
	FlagIgnoreMissing   = "ignore-missing"
	FlagMinSize         = "min"
	FlagMaxSize         = "max"
)

func main() {
	app := cli.NewApp()
	app.Name = "cfkit"
	app.Usage = "manage CloudFormation stacks"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   FlagBucket,
			Usage:  "S3 bucket for templates over the inline size limit",
			EnvVar: "CFKIT_BUCKET",
		},
		cli.StringFlag{
			Name:   FlagLogLevel,
			Value:  "info",
			Usage:  "log level (debug logs every operation to stderr)",
			EnvVar: "CFKIT_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:   FlagAWSDebug,
			Usage:  "log AWS SDK requests",
			EnvVar: "CFKIT_AWS_DEBUG",
		},
	}
	app.Commands = []cli.Command{
		cmdCreate,
		cmdUpdate,
		cmdDeploy,
		cmdDelete,
		cmdDiff,
		cmdList,
		cmdResources,
		cmdOutputs,
		cmdValidate,
		cmdEvents,
		cmdTail,
		cmdScale,
		cmdResize,
		cmdGroups,
		cmdInstances,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
