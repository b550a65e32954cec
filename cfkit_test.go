package cfkit

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestStacks_Submit_NewStack(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("DescribeStacks", &cloudformation.DescribeStacksInput{
		StackName: aws.String("acme-inc"),
	}).Return(&cloudformation.DescribeStacksOutput{}, awserr.New("ValidationError", "Stack with id acme-inc does not exist", errors.New("")))

	c.On("CreateStack", &cloudformation.CreateStackInput{
		StackName:    aws.String("acme-inc"),
		TemplateBody: aws.String("{}"),
		Parameters: []*cloudformation.Parameter{
			{ParameterKey: aws.String("InstanceType"), ParameterValue: aws.String("t3.small")},
		},
		Tags: []*cloudformation.Tag{
			{Key: aws.String("team"), Value: aws.String("platform")},
		},
		DisableRollback: aws.Bool(false),
	}).Return(&cloudformation.CreateStackOutput{}, nil)

	created, err := s.Submit(context.Background(), StackInput{
		Name:       "acme-inc",
		Template:   []byte("{}"),
		Parameters: map[string]string{"InstanceType": "t3.small"},
		Tags:       map[string]string{"team": "platform"},
	})
	assert.NoError(t, err)
	assert.True(t, created)

	c.AssertExpectations(t)
}

func TestStacks_Submit_ExistingStack(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("DescribeStacks", &cloudformation.DescribeStacksInput{
		StackName: aws.String("acme-inc"),
	}).Return(&cloudformation.DescribeStacksOutput{
		Stacks: []*cloudformation.Stack{
			{StackName: aws.String("acme-inc"), StackStatus: aws.String("CREATE_COMPLETE")},
		},
	}, nil)

	c.On("UpdateStack", &cloudformation.UpdateStackInput{
		StackName:    aws.String("acme-inc"),
		TemplateBody: aws.String("{}"),
	}).Return(&cloudformation.UpdateStackOutput{}, nil)

	created, err := s.Submit(context.Background(), StackInput{
		Name:     "acme-inc",
		Template: []byte("{}"),
	})
	assert.NoError(t, err)
	assert.False(t, created)

	c.AssertExpectations(t)
}

func TestStacks_Create_LargeTemplate(t *testing.T) {
	c := new(mockCloudFormationClient)
	x := new(mockS3Client)
	s := &Stacks{
		Bucket:         "bucket",
		cloudformation: c,
		s3:             x,
	}

	template := bytes.Repeat([]byte(" "), MaxTemplateBodySize+1)
	key := fmt.Sprintf("acme-inc/%x", sha1.Sum(template))

	x.On("PutObject", &s3.PutObjectInput{
		Bucket:      aws.String("bucket"),
		Key:         aws.String("/" + key),
		Body:        bytes.NewReader(template),
		ContentType: aws.String("application/json"),
	}).Return(&s3.PutObjectOutput{}, nil)

	c.On("CreateStack", &cloudformation.CreateStackInput{
		StackName:       aws.String("acme-inc"),
		TemplateURL:     aws.String(fmt.Sprintf("https://bucket.s3.amazonaws.com/%s", key)),
		DisableRollback: aws.Bool(false),
	}).Return(&cloudformation.CreateStackOutput{}, nil)

	err := s.Create(context.Background(), StackInput{
		Name:     "acme-inc",
		Template: template,
	})
	assert.NoError(t, err)

	c.AssertExpectations(t)
	x.AssertExpectations(t)
}

func TestStacks_Create_LargeTemplateNoBucket(t *testing.T) {
	s := &Stacks{cloudformation: new(mockCloudFormationClient)}

	err := s.Create(context.Background(), StackInput{
		Name:     "acme-inc",
		Template: bytes.Repeat([]byte(" "), MaxTemplateBodySize+1),
	})
	assert.Error(t, err)
}

func TestStacks_Update_NoStack(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("UpdateStack", &cloudformation.UpdateStackInput{
		StackName:    aws.String("acme-inc"),
		TemplateBody: aws.String("{}"),
	}).Return(&cloudformation.UpdateStackOutput{}, awserr.New("ValidationError", "Stack with id acme-inc does not exist", errors.New("")))

	err := s.Update(context.Background(), StackInput{
		Name:     "acme-inc",
		Template: []byte("{}"),
	})
	assert.Equal(t, ErrNoStack, err)
}

func TestStacks_Delete(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("DeleteStack", &cloudformation.DeleteStackInput{
		StackName: aws.String("acme-inc"),
	}).Return(&cloudformation.DeleteStackOutput{}, nil)

	err := s.Delete(context.Background(), "acme-inc")
	assert.NoError(t, err)

	c.AssertExpectations(t)
}

func TestStacks_List(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	// Two pages; every page contributes to the result.
	c.On("DescribeStacksPages", &cloudformation.DescribeStacksInput{}).Return([]*cloudformation.DescribeStacksOutput{
		{
			Stacks: []*cloudformation.Stack{
				{StackName: aws.String("zulu")},
				{StackName: aws.String("acme-inc")},
			},
		},
		{
			Stacks: []*cloudformation.Stack{
				{StackName: aws.String("mike")},
			},
		},
	}, nil)

	stacks, err := s.List(context.Background())
	assert.NoError(t, err)
	assert.Len(t, stacks, 3)
	assert.Equal(t, "acme-inc", *stacks[0].StackName)
	assert.Equal(t, "mike", *stacks[1].StackName)
	assert.Equal(t, "zulu", *stacks[2].StackName)
}

func TestStacks_Resources(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("ListStackResourcesPages", &cloudformation.ListStackResourcesInput{
		StackName: aws.String("acme-inc"),
	}).Return(&cloudformation.ListStackResourcesOutput{
		StackResourceSummaries: []*cloudformation.StackResourceSummary{
			{LogicalResourceId: aws.String("Instance"), ResourceType: aws.String("AWS::EC2::Instance")},
		},
	}, nil)

	resources, err := s.Resources(context.Background(), "acme-inc")
	assert.NoError(t, err)
	assert.Len(t, resources, 1)
	assert.Equal(t, "Instance", *resources[0].LogicalResourceId)
}

func TestStacks_Outputs(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("DescribeStacks", &cloudformation.DescribeStacksInput{
		StackName: aws.String("acme-inc"),
	}).Return(&cloudformation.DescribeStacksOutput{
		Stacks: []*cloudformation.Stack{
			{
				StackName: aws.String("acme-inc"),
				Outputs: []*cloudformation.Output{
					{OutputKey: aws.String("URL"), OutputValue: aws.String("https://acme-inc.example.com")},
				},
			},
		},
	}, nil)

	outputs, err := s.Outputs(context.Background(), "acme-inc")
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"URL": "https://acme-inc.example.com"}, outputs)
}

func TestStacks_Outputs_NoStack(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("DescribeStacks", &cloudformation.DescribeStacksInput{
		StackName: aws.String("acme-inc"),
	}).Return(&cloudformation.DescribeStacksOutput{}, awserr.New("ValidationError", "Stack with id acme-inc does not exist", errors.New("")))

	_, err := s.Outputs(context.Background(), "acme-inc")
	assert.Equal(t, ErrNoStack, err)
}

func TestStacks_Validate(t *testing.T) {
	c := new(mockCloudFormationClient)
	s := &Stacks{cloudformation: c}

	c.On("ValidateTemplate", &cloudformation.ValidateTemplateInput{
		TemplateBody: aws.String("{}"),
	}).Return(&cloudformation.ValidateTemplateOutput{}, nil)

	err := s.Validate(context.Background(), []byte("{}"))
	assert.NoError(t, err)
}

type mockCloudFormationClient struct {
	mock.Mock
}

func (m *mockCloudFormationClient) CreateStack(input *cloudformation.CreateStackInput) (*cloudformation.CreateStackOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*cloudformation.CreateStackOutput), args.Error(1)
}

func (m *mockCloudFormationClient) UpdateStack(input *cloudformation.UpdateStackInput) (*cloudformation.UpdateStackOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*cloudformation.UpdateStackOutput), args.Error(1)
}

func (m *mockCloudFormationClient) DeleteStack(input *cloudformation.DeleteStackInput) (*cloudformation.DeleteStackOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*cloudformation.DeleteStackOutput), args.Error(1)
}

func (m *mockCloudFormationClient) DescribeStacks(input *cloudformation.DescribeStacksInput) (*cloudformation.DescribeStacksOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*cloudformation.DescribeStacksOutput), args.Error(1)
}

func (m *mockCloudFormationClient) DescribeStacksPages(input *cloudformation.DescribeStacksInput, fn func(*cloudformation.DescribeStacksOutput, bool) bool) error {
	args := m.Called(input)
	pages := args.Get(0).([]*cloudformation.DescribeStacksOutput)
	for i, p := range pages {
		if !fn(p, i == len(pages)-1) {
			break
		}
	}
	return args.Error(1)
}

func (m *mockCloudFormationClient) GetTemplate(input *cloudformation.GetTemplateInput) (*cloudformation.GetTemplateOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*cloudformation.GetTemplateOutput), args.Error(1)
}

func (m *mockCloudFormationClient) ListStackResourcesPages(input *cloudformation.ListStackResourcesInput, fn func(*cloudformation.ListStackResourcesOutput, bool) bool) error {
	args := m.Called(input)
	fn(args.Get(0).(*cloudformation.ListStackResourcesOutput), true)
	return args.Error(1)
}

func (m *mockCloudFormationClient) ValidateTemplate(input *cloudformation.ValidateTemplateInput) (*cloudformation.ValidateTemplateOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*cloudformation.ValidateTemplateOutput), args.Error(1)
}

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}
