// Package cfkit manages CloudFormation stacks: create, update, delete, diff,
// and tail, plus small helpers around the resources a stack provisions.
package cfkit

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/remind101/pkg/logger"
)

// CloudFormation limits
//
// See http://docs.aws.amazon.com/AWSCloudFormation/latest/UserGuide/cloudformation-limits.html
const (
	// MaxTemplateBodySize is the largest template that can be passed inline
	// to the API. Anything bigger has to go through S3.
	MaxTemplateBodySize = 51200 // bytes
)

// ErrNoStack is returned when an operation references a stack that doesn't
// exist.
var ErrNoStack = errors.New("stack not found")

// cloudformationClient duck types the cloudformation.CloudFormation interface
// that we use.
type cloudformationClient interface {
	CreateStack(*cloudformation.CreateStackInput) (*cloudformation.CreateStackOutput, error)
	UpdateStack(*cloudformation.UpdateStackInput) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(*cloudformation.DeleteStackInput) (*cloudformation.DeleteStackOutput, error)
	DescribeStacks(*cloudformation.DescribeStacksInput) (*cloudformation.DescribeStacksOutput, error)
	DescribeStacksPages(*cloudformation.DescribeStacksInput, func(*cloudformation.DescribeStacksOutput, bool) bool) error
	GetTemplate(*cloudformation.GetTemplateInput) (*cloudformation.GetTemplateOutput, error)
	ListStackResourcesPages(*cloudformation.ListStackResourcesInput, func(*cloudformation.ListStackResourcesOutput, bool) bool) error
	ValidateTemplate(*cloudformation.ValidateTemplateInput) (*cloudformation.ValidateTemplateOutput, error)
}

// s3Client duck types the s3.S3 interface that we use.
type s3Client interface {
	PutObject(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
}

// StackInput describes the desired state of a single stack.
type StackInput struct {
	// Name of the stack. Required.
	Name string

	// The raw template body, JSON or YAML.
	Template []byte

	// Parameter values, keyed by parameter name.
	Parameters map[string]string

	// Tags to apply to the stack, merged with Stacks.Tags.
	Tags map[string]string

	// IAM capabilities to acknowledge (e.g. CAPABILITY_IAM).
	Capabilities []string

	// SNS topics to notify about stack events.
	NotificationARNs []string

	// When true, a failed create leaves the stack in place for debugging
	// instead of rolling it back.
	DisableRollback bool
}

// Stacks performs CloudFormation stack operations.
type Stacks struct {
	// The name of the bucket to upload oversized templates to. Templates
	// larger than MaxTemplateBodySize can't be passed inline; when Bucket
	// is empty, they're rejected.
	Bucket string

	// Any additional tags to add to stacks.
	Tags map[string]string

	// CloudFormation client for stack operations.
	cloudformation cloudformationClient

	// S3 client to upload templates.
	s3 s3Client
}

// NewStacks returns a new Stacks instance backed by real AWS clients.
func NewStacks(config client.ConfigProvider) *Stacks {
	return &Stacks{
		cloudformation: cloudformation.New(config),
		s3:             s3.New(config),
	}
}

// Create creates a new stack. It returns as soon as the create has been
// submitted; it does not wait for the stack to stabilize.
func (s *Stacks) Create(ctx context.Context, in StackInput) error {
	if err := validInput(in); err != nil {
		return err
	}

	body, url, err := s.templateArg(ctx, in)
	if err != nil {
		return err
	}

	logger.Info(ctx, "cfkit.create.request", "stack", in.Name)

	_, err = s.cloudformation.CreateStack(&cloudformation.CreateStackInput{
		StackName:        aws.String(in.Name),
		TemplateBody:     body,
		TemplateURL:      url,
		Parameters:       stackParameters(in.Parameters),
		Tags:             s.stackTags(in.Tags),
		Capabilities:     stringSlice(in.Capabilities),
		NotificationARNs: stringSlice(in.NotificationARNs),
		DisableRollback:  aws.Bool(in.DisableRollback),
	})
	if err != nil {
		logger.Error(ctx, "cfkit.create.error", "stack", in.Name, "err", err.Error())
		return fmt.Errorf("error creating stack %s: %v", in.Name, err)
	}

	return nil
}

// Update updates an existing stack. Like Create, it does not wait for the
// update to complete.
func (s *Stacks) Update(ctx context.Context, in StackInput) error {
	if err := validInput(in); err != nil {
		return err
	}

	body, url, err := s.templateArg(ctx, in)
	if err != nil {
		return err
	}

	logger.Info(ctx, "cfkit.update.request", "stack", in.Name)

	_, err = s.cloudformation.UpdateStack(&cloudformation.UpdateStackInput{
		StackName:        aws.String(in.Name),
		TemplateBody:     body,
		TemplateURL:      url,
		Parameters:       stackParameters(in.Parameters),
		Tags:             s.stackTags(in.Tags),
		Capabilities:     stringSlice(in.Capabilities),
		NotificationARNs: stringSlice(in.NotificationARNs),
	})
	if err != nil {
		if stackDoesNotExist(err, in.Name) {
			return ErrNoStack
		}
		logger.Error(ctx, "cfkit.update.error", "stack", in.Name, "err", err.Error())
		return fmt.Errorf("error updating stack %s: %v", in.Name, err)
	}

	return nil
}

// Submit creates the stack if it doesn't exist yet, and updates it otherwise.
// It reports whether the stack was created.
func (s *Stacks) Submit(ctx context.Context, in StackInput) (created bool, err error) {
	if err := validInput(in); err != nil {
		return false, err
	}

	_, err = s.cloudformation.DescribeStacks(&cloudformation.DescribeStacksInput{
		StackName: aws.String(in.Name),
	})
	if stackDoesNotExist(err, in.Name) {
		return true, s.Create(ctx, in)
	} else if err != nil {
		return false, fmt.Errorf("error describing stack %s: %v", in.Name, err)
	}

	return false, s.Update(ctx, in)
}

// Delete deletes the stack. The delete happens asynchronously on the AWS
// side; pair this with a Tailer to watch it finish.
func (s *Stacks) Delete(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("stack name required")
	}

	logger.Info(ctx, "cfkit.delete.request", "stack", name)

	_, err := s.cloudformation.DeleteStack(&cloudformation.DeleteStackInput{
		StackName: aws.String(name),
	})
	if err != nil {
		logger.Error(ctx, "cfkit.delete.error", "stack", name, "err", err.Error())
		return fmt.Errorf("error deleting stack %s: %v", name, err)
	}

	return nil
}

// Describe returns the stack with the given name, or ErrNoStack.
func (s *Stacks) Describe(ctx context.Context, name string) (*cloudformation.Stack, error) {
	resp, err := s.cloudformation.DescribeStacks(&cloudformation.DescribeStacksInput{
		StackName: aws.String(name),
	})
	if stackDoesNotExist(err, name) {
		return nil, ErrNoStack
	} else if err != nil {
		return nil, fmt.Errorf("error describing stack %s: %v", name, err)
	}
	if len(resp.Stacks) == 0 {
		return nil, ErrNoStack
	}
	return resp.Stacks[0], nil
}

// List returns all stacks in the account and region, sorted by name.
func (s *Stacks) List(ctx context.Context) ([]*cloudformation.Stack, error) {
	var stacks []*cloudformation.Stack
	err := s.cloudformation.DescribeStacksPages(&cloudformation.DescribeStacksInput{}, func(p *cloudformation.DescribeStacksOutput, lastPage bool) bool {
		stacks = append(stacks, p.Stacks...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error listing stacks: %v", err)
	}

	sort.Slice(stacks, func(i, j int) bool {
		return *stacks[i].StackName < *stacks[j].StackName
	})
	return stacks, nil
}

// Resources returns the resources provisioned by the stack.
func (s *Stacks) Resources(ctx context.Context, name string) ([]*cloudformation.StackResourceSummary, error) {
	var summaries []*cloudformation.StackResourceSummary
	err := s.cloudformation.ListStackResourcesPages(&cloudformation.ListStackResourcesInput{
		StackName: aws.String(name),
	}, func(p *cloudformation.ListStackResourcesOutput, lastPage bool) bool {
		summaries = append(summaries, p.StackResourceSummaries...)
		return true
	})
	if stackDoesNotExist(err, name) {
		return nil, ErrNoStack
	} else if err != nil {
		return nil, fmt.Errorf("error listing resources for %s: %v", name, err)
	}
	return summaries, nil
}

// Outputs returns the stack outputs as a map.
func (s *Stacks) Outputs(ctx context.Context, name string) (map[string]string, error) {
	stack, err := s.Describe(ctx, name)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string)
	for _, o := range stack.Outputs {
		outputs[*o.OutputKey] = *o.OutputValue
	}
	return outputs, nil
}

// Validate asks CloudFormation to validate the template.
func (s *Stacks) Validate(ctx context.Context, template []byte) error {
	_, err := s.cloudformation.ValidateTemplate(&cloudformation.ValidateTemplateInput{
		TemplateBody: aws.String(string(template)),
	})
	if err != nil {
		return fmt.Errorf("error validating template: %v", err)
	}
	return nil
}

// templateArg decides how the template gets to the API. Small templates are
// passed inline; anything over MaxTemplateBodySize is uploaded to S3 and
// referenced by URL.
func (s *Stacks) templateArg(ctx context.Context, in StackInput) (body *string, url *string, err error) {
	if len(in.Template) == 0 {
		return nil, nil, errors.New("template required")
	}

	if len(in.Template) <= MaxTemplateBodySize {
		return aws.String(string(in.Template)), nil, nil
	}

	if s.Bucket == "" {
		return nil, nil, fmt.Errorf("template is %d bytes, which is over the %d byte limit, and no template bucket is configured", len(in.Template), MaxTemplateBodySize)
	}

	key := fmt.Sprintf("%s/%x", in.Name, sha1.Sum(in.Template))

	_, err = s.s3.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(fmt.Sprintf("/%s", key)),
		Body:        bytes.NewReader(in.Template),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error uploading template to s3: %v", err)
	}

	logger.Debug(ctx, "cfkit.template.uploaded", "stack", in.Name, "key", key)

	return nil, aws.String(fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.Bucket, key)), nil
}

func (s *Stacks) stackTags(tags map[string]string) []*cloudformation.Tag {
	merged := make(map[string]string, len(s.Tags)+len(tags))
	for k, v := range s.Tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}

	var out []*cloudformation.Tag
	for _, k := range sortedKeys(merged) {
		out = append(out, &cloudformation.Tag{
			Key:   aws.String(k),
			Value: aws.String(merged[k]),
		})
	}
	return out
}

func stackParameters(params map[string]string) []*cloudformation.Parameter {
	var out []*cloudformation.Parameter
	for _, k := range sortedKeys(params) {
		out = append(out, &cloudformation.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(params[k]),
		})
	}
	return out
}

// stringSlice is aws.StringSlice, except an empty slice stays nil so that
// empty fields are omitted from API requests.
func stringSlice(ss []string) []*string {
	if len(ss) == 0 {
		return nil
	}
	return aws.StringSlice(ss)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validInput(in StackInput) error {
	if in.Name == "" {
		return errors.New("stack name required")
	}
	return nil
}

// stackDoesNotExist returns true if the error is CloudFormation telling us
// the stack isn't there.
func stackDoesNotExist(err error, stackName string) bool {
	if err, ok := err.(awserr.Error); ok {
		return err.Message() == fmt.Sprintf("Stack with id %s does not exist", stackName)
	}
	return false
}
