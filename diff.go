package cfkit

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// Diff compares the deployed stack against the given input and returns a
// human readable description of what would change. An empty string means no
// changes.
//
// The comparison is structural: both templates are parsed (CloudFormation
// templates are JSON or YAML, and JSON is a YAML subset) and compared as
// documents, so formatting and key order don't show up as changes. Parameters
// are only compared when the input provides some.
func (s *Stacks) Diff(ctx context.Context, in StackInput) (string, error) {
	if err := validInput(in); err != nil {
		return "", err
	}

	resp, err := s.cloudformation.GetTemplate(&cloudformation.GetTemplateInput{
		StackName: aws.String(in.Name),
	})
	if stackDoesNotExist(err, in.Name) {
		return "", ErrNoStack
	} else if err != nil {
		return "", fmt.Errorf("error fetching template for %s: %v", in.Name, err)
	}

	deployed, err := parseTemplate([]byte(aws.StringValue(resp.TemplateBody)))
	if err != nil {
		return "", fmt.Errorf("error parsing deployed template for %s: %v", in.Name, err)
	}

	proposed, err := parseTemplate(in.Template)
	if err != nil {
		return "", fmt.Errorf("error parsing template: %v", err)
	}

	var out string
	if d := cmp.Diff(deployed, proposed); d != "" {
		out += fmt.Sprintf("Template:\n%s", d)
	}

	if in.Parameters != nil {
		stack, err := s.Describe(ctx, in.Name)
		if err != nil {
			return "", err
		}

		current := make(map[string]string)
		for _, p := range stack.Parameters {
			current[aws.StringValue(p.ParameterKey)] = aws.StringValue(p.ParameterValue)
		}

		if d := cmp.Diff(current, in.Parameters); d != "" {
			out += fmt.Sprintf("Parameters:\n%s", d)
		}
	}

	return out, nil
}

func parseTemplate(body []byte) (interface{}, error) {
	var doc interface{}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
