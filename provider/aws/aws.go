package aws

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/remote/config"
	"github.com/projecteru2/remote/provider"
	"github.com/projecteru2/remote/types"
)

// compile-time interface checks.
var (
	_ provider.Provider    = (*EC2)(nil)
	_ provider.Provisioner = (*EC2)(nil)
)

// EC2 implements provider.Provider on Amazon EC2.
type EC2 struct {
	region  string
	retry   config.RetryConfig
	clients *clientCache
	now     func() time.Time
}

// New creates an EC2 provider. region, when set, overrides the profile
// region for instances that do not carry their own.
func New(conf *config.Config, factory ClientFactory) *EC2 {
	if factory == nil {
		factory = DefaultClientFactory
	}
	return &EC2{
		region:  conf.AWSRegion,
		retry:   conf.Retry,
		clients: &clientCache{factory: factory},
		now:     time.Now,
	}
}

func (p *EC2) Kind() types.ProviderKind { return types.ProviderAWS }

// Describe returns the current EC2 view of inst.
func (p *EC2) Describe(ctx context.Context, inst types.Instance) (*types.ObservedStatus, error) {
	ec2Inst, err := p.describe(ctx, inst)
	if err != nil {
		return nil, err
	}
	return &types.ObservedStatus{
		InstanceID:   aws.ToString(ec2Inst.InstanceId),
		Status:       stateOf(ec2Inst.State),
		RawState:     rawState(ec2Inst.State),
		InstanceType: string(ec2Inst.InstanceType),
		PublicDNS:    aws.ToString(ec2Inst.PublicDnsName),
		Tags:         tagMap(ec2Inst.Tags),
		ObservedAt:   p.now(),
	}, nil
}

// Start issues StartInstances. EC2 answers IncorrectInstanceState for
// instances that cannot be started.
func (p *EC2) Start(ctx context.Context, inst types.Instance) error {
	return p.call(ctx, inst, "StartInstances", func(ctx context.Context, c EC2API) error {
		out, err := c.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{inst.InstanceID}})
		if err == nil {
			logStateChange(ctx, "aws.Start", inst, out.StartingInstances)
		}
		return err
	})
}

// Stop issues StopInstances.
func (p *EC2) Stop(ctx context.Context, inst types.Instance) error {
	return p.call(ctx, inst, "StopInstances", func(ctx context.Context, c EC2API) error {
		out, err := c.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{inst.InstanceID}})
		if err == nil {
			logStateChange(ctx, "aws.Stop", inst, out.StoppingInstances)
		}
		return err
	})
}

// Resize sets the instance type. EC2 only allows this on a stopped
// instance; the state is checked first so the error is classified the
// same way regardless of the API's wording.
func (p *EC2) Resize(ctx context.Context, inst types.Instance, newType string) error {
	obs, err := p.Describe(ctx, inst)
	if err != nil {
		return err
	}
	if obs.Status != types.StatusStopped {
		return provider.NewError(provider.KindInvalidState, "ModifyInstanceAttribute", inst.InstanceID,
			fmt.Errorf("instance is %s, must be stopped to change type", obs.RawState))
	}
	return p.call(ctx, inst, "ModifyInstanceAttribute", func(ctx context.Context, c EC2API) error {
		_, err := c.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId:   aws.String(inst.InstanceID),
			InstanceType: &ec2types.AttributeValue{Value: aws.String(newType)},
		})
		return err
	})
}

// Terminate issues TerminateInstances. Irreversible.
func (p *EC2) Terminate(ctx context.Context, inst types.Instance) error {
	return p.call(ctx, inst, "TerminateInstances", func(ctx context.Context, c EC2API) error {
		out, err := c.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{inst.InstanceID}})
		if err == nil {
			logStateChange(ctx, "aws.Terminate", inst, out.TerminatingInstances)
		}
		return err
	})
}

// Provision launches one instance with RunInstances, tagged Name=<alias>.
func (p *EC2) Provision(ctx context.Context, inst types.Instance, req types.ProvisionRequest) (string, error) {
	if req.Image == "" {
		return "", provider.NewError(provider.KindOther, "RunInstances", "", errors.New("image is required"))
	}
	instanceType := req.InstanceType
	if instanceType == "" {
		instanceType = inst.Type
	}
	tags := []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(inst.Alias)}}
	for k, v := range req.Tags {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	in := &ec2.RunInstancesInput{
		ImageId:      aws.String(req.Image),
		InstanceType: ec2types.InstanceType(instanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         tags,
		}},
	}
	if req.KeyName != "" {
		in.KeyName = aws.String(req.KeyName)
	}
	if req.SubnetID != "" {
		in.SubnetId = aws.String(req.SubnetID)
	}
	if len(req.SecurityGroups) > 0 {
		in.SecurityGroupIds = req.SecurityGroups
	}

	client, err := p.client(ctx, inst.Profile, inst.Region)
	if err != nil {
		return "", err
	}
	// RunInstances is not idempotent without a client token; do not retry it.
	out, err := client.RunInstances(ctx, in)
	if err != nil {
		return "", wrap("RunInstances", "", err)
	}
	if len(out.Instances) == 0 || out.Instances[0].InstanceId == nil {
		return "", provider.NewError(provider.KindOther, "RunInstances", "", errors.New("no instance returned"))
	}
	id := aws.ToString(out.Instances[0].InstanceId)
	log.WithFunc("aws.Provision").Infof(ctx, "launched %s for %s from %s", id, inst.Alias, req.Image)
	return id, nil
}

// ListAvailable pages through DescribeInstances for profile, yielding each
// instance as its page arrives. Terminated instances are skipped.
func (p *EC2) ListAvailable(ctx context.Context, profile string) iter.Seq2[types.InstanceDescriptor, error] {
	return func(yield func(types.InstanceDescriptor, error) bool) {
		client, err := p.client(ctx, profile, "")
		if err != nil {
			yield(types.InstanceDescriptor{}, err)
			return
		}
		pages := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
		for pages.HasMorePages() {
			out, err := provider.DoWithRetry(ctx, p.retry, "DescribeInstances", func(ctx context.Context) (*ec2.DescribeInstancesOutput, error) {
				out, err := pages.NextPage(ctx)
				return out, wrap("DescribeInstances", "", err)
			})
			if err != nil {
				yield(types.InstanceDescriptor{}, err)
				return
			}
			for _, res := range out.Reservations {
				for _, in := range res.Instances {
					d := descriptorOf(in)
					if d.Status == types.StatusTerminated {
						continue
					}
					if !yield(d, nil) {
						return
					}
				}
			}
		}
	}
}

func (p *EC2) describe(ctx context.Context, inst types.Instance) (*ec2types.Instance, error) {
	var found *ec2types.Instance
	err := p.call(ctx, inst, "DescribeInstances", func(ctx context.Context, c EC2API) error {
		out, err := c.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{inst.InstanceID}})
		if err != nil {
			return err
		}
		for _, res := range out.Reservations {
			for i := range res.Instances {
				if aws.ToString(res.Instances[i].InstanceId) == inst.InstanceID {
					found = &res.Instances[i]
					return nil
				}
			}
		}
		return provider.NewError(provider.KindNotFound, "DescribeInstances", inst.InstanceID, errors.New("instance not visible to profile"))
	})
	return found, err
}

// call resolves the client for inst and runs fn under the retry policy,
// classifying any SDK error.
func (p *EC2) call(ctx context.Context, inst types.Instance, op string, fn func(context.Context, EC2API) error) error {
	if inst.InstanceID == "" {
		return provider.NewError(provider.KindNotFound, op, "", fmt.Errorf("%s has no instance id", inst.Alias))
	}
	client, err := p.client(ctx, inst.Profile, inst.Region)
	if err != nil {
		return err
	}
	return provider.Retry(ctx, p.retry, op, func(ctx context.Context) error {
		return wrap(op, inst.InstanceID, fn(ctx, client))
	})
}

func (p *EC2) client(ctx context.Context, profile, region string) (EC2API, error) {
	if region == "" {
		region = p.region
	}
	if profile == "" {
		profile = "default"
	}
	c, err := p.clients.get(ctx, profile, region)
	if err != nil {
		return nil, provider.NewError(classify(err), "LoadConfig", "", err)
	}
	return c, nil
}

func logStateChange(ctx context.Context, fn string, inst types.Instance, changes []ec2types.InstanceStateChange) {
	logger := log.WithFunc(fn)
	for _, ch := range changes {
		logger.Infof(ctx, "%s (%s): %s -> %s", inst.Alias, aws.ToString(ch.InstanceId),
			rawState(ch.PreviousState), rawState(ch.CurrentState))
	}
}
