package cfkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/mgutz/ansi"
)

// DefaultTailInterval is how long the Tailer sleeps between polls.
const DefaultTailInterval = 1 * time.Second

// stackEventsClient duck types the part of cloudformation.CloudFormation that
// the Tailer uses.
type stackEventsClient interface {
	DescribeStackEventsPages(*cloudformation.DescribeStackEventsInput, func(*cloudformation.DescribeStackEventsOutput, bool) bool) error
}

// Event is one stack event, flattened out of the AWS shape so that two events
// can be compared with ==.
type Event struct {
	Timestamp time.Time
	LogicalID string
	Type      string
	Status    string
	Reason    string
}

// String renders the event as a single line.
func (e Event) String() string {
	line := fmt.Sprintf("%s %s %s %s", e.Timestamp.Format(time.RFC3339), e.Status, e.Type, e.LogicalID)
	if e.Reason != "" {
		line += fmt.Sprintf(" (%s)", e.Reason)
	}
	return line
}

// Terminal returns true if this event marks the end of an operation on the
// named stack: the stack's own resource reaching a _COMPLETE or _FAILED
// status.
func (e Event) Terminal(stackName string) bool {
	if e.Type != "AWS::CloudFormation::Stack" || e.LogicalID != stackName {
		return false
	}
	return strings.HasSuffix(e.Status, "_COMPLETE") || strings.HasSuffix(e.Status, "_FAILED")
}

// Tailer follows the event log of a single stack, printing events as they
// appear, until the stack reaches a terminal status.
//
// Each call to Tail owns its own poll state; two tailers (or two calls) don't
// coordinate, they each just poll and print.
type Tailer struct {
	// Interval is how long to sleep between polls. Zero means
	// DefaultTailInterval.
	Interval time.Duration

	// When true, a "stack does not exist" error is treated like an empty
	// event log instead of an error. Useful when tailing a stack right
	// after submitting the create, before CloudFormation knows about it.
	IgnoreMissing bool

	// When true, event statuses are colorized for terminals.
	Colorize bool

	// CloudFormation client to fetch events with.
	cloudformation stackEventsClient
}

// NewTailer returns a Tailer backed by a real CloudFormation client.
func NewTailer(config client.ConfigProvider) *Tailer {
	return &Tailer{
		cloudformation: cloudformation.New(config),
	}
}

// Tail polls the stack's events and writes newly observed ones to w, in the
// order the event log reports them, until the stack reaches a terminal
// status. The last event of each snapshot is withheld as the candidate final
// line; it's only printed when it turns out to be terminal.
//
// Tail blocks until the stack terminates or ctx is canceled. Bound it with
// context.WithTimeout if you're not a human watching a deploy.
func (t *Tailer) Tail(ctx context.Context, w io.Writer, stackName string) error {
	if stackName == "" {
		return errors.New("stack name required")
	}

	interval := t.Interval
	if interval == 0 {
		interval = DefaultTailInterval
	}

	var previous []Event
	primed := false

	for {
		events, err := t.Snapshot(ctx, stackName)
		if err != nil {
			if t.IgnoreMissing && !primed && stackDoesNotExist(err, stackName) {
				events = nil
			} else {
				return err
			}
		}

		// Nothing yet. Don't touch previous, just poll again.
		if len(events) == 0 {
			if err := sleep(ctx, interval); err != nil {
				return err
			}
			continue
		}

		current, last := events[:len(events)-1], events[len(events)-1]

		if !primed {
			for _, e := range current {
				t.writeEvent(w, e)
			}
		} else {
			for _, e := range newEvents(current, previous) {
				t.writeEvent(w, e)
			}
		}
		previous = current
		primed = true

		if last.Terminal(stackName) {
			t.writeEvent(w, last)
			return nil
		}

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// Snapshot fetches the full event log for the stack, oldest first.
func (t *Tailer) Snapshot(ctx context.Context, stackName string) ([]Event, error) {
	var events []Event
	err := t.cloudformation.DescribeStackEventsPages(&cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackName),
	}, func(p *cloudformation.DescribeStackEventsOutput, lastPage bool) bool {
		for _, e := range p.StackEvents {
			events = append(events, Event{
				Timestamp: aws.TimeValue(e.Timestamp),
				LogicalID: aws.StringValue(e.LogicalResourceId),
				Type:      aws.StringValue(e.ResourceType),
				Status:    aws.StringValue(e.ResourceStatus),
				Reason:    aws.StringValue(e.ResourceStatusReason),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	// The API returns events newest first. Reverse the whole fetch so that
	// events sharing a timestamp end up in occurrence order, then stable
	// sort by timestamp in case the API reordered anything across pages.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// newEvents returns the events in current that aren't in previous, in
// current's order. This is a set difference, not a positional diff: if the
// API reorders or drops lines between polls, an event we've already printed
// stays printed.
func newEvents(current, previous []Event) []Event {
	seen := make(map[Event]struct{}, len(previous))
	for _, e := range previous {
		seen[e] = struct{}{}
	}

	var out []Event
	for _, e := range current {
		if _, ok := seen[e]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func (t *Tailer) writeEvent(w io.Writer, e Event) {
	if t.Colorize {
		e.Status = colorStatus(e.Status)
	}
	fmt.Fprintln(w, e.String())
}

var (
	red    = ansi.ColorFunc("red+b")
	green  = ansi.ColorFunc("green")
	yellow = ansi.ColorFunc("yellow")
)

func colorStatus(status string) string {
	switch {
	case strings.HasSuffix(status, "_FAILED") || strings.Contains(status, "ROLLBACK"):
		return red(status)
	case strings.HasSuffix(status, "_COMPLETE"):
		return green(status)
	default:
		return yellow(status)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
