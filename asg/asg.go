// Package asg wraps the Auto Scaling and EC2 APIs for the handful of
// operations we run against the groups a stack provisions: scaling them and
// finding addresses to ssh to.
package asg

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/remind101/pkg/logger"
)

// ErrNoGroup is returned when the named Auto Scaling group doesn't exist.
var ErrNoGroup = errors.New("auto scaling group not found")

// autoscalingClient duck types the autoscaling.AutoScaling interface that we
// use.
type autoscalingClient interface {
	SetDesiredCapacity(*autoscaling.SetDesiredCapacityInput) (*autoscaling.SetDesiredCapacityOutput, error)
	UpdateAutoScalingGroup(*autoscaling.UpdateAutoScalingGroupInput) (*autoscaling.UpdateAutoScalingGroupOutput, error)
	DescribeAutoScalingGroupsPages(*autoscaling.DescribeAutoScalingGroupsInput, func(*autoscaling.DescribeAutoScalingGroupsOutput, bool) bool) error
}

// ec2Client duck types the ec2.EC2 interface that we use.
type ec2Client interface {
	DescribeInstances(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
}

// Instance is a member of an Auto Scaling group, flattened down to what you
// need to reach it.
type Instance struct {
	ID        string
	State     string
	Type      string
	Zone      string
	PrivateIP string
	PublicIP  string
}

// Client performs Auto Scaling group operations.
type Client struct {
	autoscaling autoscalingClient
	ec2         ec2Client
}

// New returns a Client backed by real AWS clients.
func New(config client.ConfigProvider) *Client {
	return &Client{
		autoscaling: autoscaling.New(config),
		ec2:         ec2.New(config),
	}
}

// Scale sets the desired capacity of the group. Cooldown timers are honored,
// so a scale-in right after a scale-out may be deferred by AWS.
func (c *Client) Scale(ctx context.Context, group string, desired int64) error {
	if group == "" {
		return errors.New("group name required")
	}

	logger.Info(ctx, "asg.scale.request", "group", group, "desired", desired)

	_, err := c.autoscaling.SetDesiredCapacity(&autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(group),
		DesiredCapacity:      aws.Int64(desired),
		HonorCooldown:        aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("error scaling group %s: %v", group, err)
	}
	return nil
}

// Resize changes the group's min and max bounds, clamping desired capacity
// into the new range on the AWS side.
func (c *Client) Resize(ctx context.Context, group string, min, max int64) error {
	if group == "" {
		return errors.New("group name required")
	}

	logger.Info(ctx, "asg.resize.request", "group", group, "min", min, "max", max)

	_, err := c.autoscaling.UpdateAutoScalingGroup(&autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(group),
		MinSize:              aws.Int64(min),
		MaxSize:              aws.Int64(max),
	})
	if err != nil {
		return fmt.Errorf("error resizing group %s: %v", group, err)
	}
	return nil
}

// Groups returns all Auto Scaling groups in the account and region.
func (c *Client) Groups(ctx context.Context) ([]*autoscaling.Group, error) {
	var groups []*autoscaling.Group
	err := c.autoscaling.DescribeAutoScalingGroupsPages(&autoscaling.DescribeAutoScalingGroupsInput{}, func(p *autoscaling.DescribeAutoScalingGroupsOutput, lastPage bool) bool {
		groups = append(groups, p.AutoScalingGroups...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %v", err)
	}
	return groups, nil
}

// Group returns the named Auto Scaling group, or ErrNoGroup.
func (c *Client) Group(ctx context.Context, name string) (*autoscaling.Group, error) {
	var group *autoscaling.Group
	err := c.autoscaling.DescribeAutoScalingGroupsPages(&autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []*string{aws.String(name)},
	}, func(p *autoscaling.DescribeAutoScalingGroupsOutput, lastPage bool) bool {
		if len(p.AutoScalingGroups) > 0 {
			group = p.AutoScalingGroups[0]
			return false
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error describing group %s: %v", name, err)
	}
	if group == nil {
		return nil, ErrNoGroup
	}
	return group, nil
}

// Instances returns the running members of the group with their addresses.
// This is the ssh helper: pick an address and go.
func (c *Client) Instances(ctx context.Context, group string) ([]*Instance, error) {
	g, err := c.Group(ctx, group)
	if err != nil {
		return nil, err
	}

	var ids []*string
	for _, i := range g.Instances {
		ids = append(ids, i.InstanceId)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	resp, err := c.ec2.DescribeInstances(&ec2.DescribeInstancesInput{
		InstanceIds: ids,
	})
	if err != nil {
		return nil, fmt.Errorf("error describing instances for %s: %v", group, err)
	}

	var instances []*Instance
	for _, r := range resp.Reservations {
		for _, i := range r.Instances {
			var state, zone string
			if i.State != nil {
				state = aws.StringValue(i.State.Name)
			}
			if i.Placement != nil {
				zone = aws.StringValue(i.Placement.AvailabilityZone)
			}
			if state != ec2.InstanceStateNameRunning {
				continue
			}
			instances = append(instances, &Instance{
				ID:        aws.StringValue(i.InstanceId),
				State:     state,
				Type:      aws.StringValue(i.InstanceType),
				Zone:      zone,
				PrivateIP: aws.StringValue(i.PrivateIpAddress),
				PublicIP:  aws.StringValue(i.PublicIpAddress),
			})
		}
	}
	return instances, nil
}
