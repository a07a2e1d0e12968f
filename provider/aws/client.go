package aws

import (
	"context"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// EC2API is the subset of the EC2 client the provider uses.
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	ModifyInstanceAttribute(ctx context.Context, in *ec2.ModifyInstanceAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
}

// compile-time interface check.
var _ EC2API = (*ec2.Client)(nil)

// ClientFactory builds an EC2 client for a credential profile and region.
// An empty region means "whatever the profile resolves to".
type ClientFactory func(ctx context.Context, profile, region string) (EC2API, error)

// DefaultClientFactory loads the shared AWS config for profile. The SDK's
// own retryer is limited to a single attempt; transient errors are retried
// by the provider so that every call follows one retry policy.
func DefaultClientFactory(ctx context.Context, profile, region string) (EC2API, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithSharedConfigProfile(profile),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for profile %q: %w", profile, err)
	}
	return ec2.NewFromConfig(cfg), nil
}

type clientKey struct{ profile, region string }

// clientCache memoises one client per (profile, region) for the life of
// the process. Clients carry credentials, never instance state.
type clientCache struct {
	factory ClientFactory
	mu      sync.Mutex
	clients map[clientKey]EC2API
}

func (c *clientCache) get(ctx context.Context, profile, region string) (EC2API, error) {
	key := clientKey{profile, region}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, nil
	}
	cl, err := c.factory(ctx, profile, region)
	if err != nil {
		return nil, err
	}
	if c.clients == nil {
		c.clients = make(map[clientKey]EC2API)
	}
	c.clients[key] = cl
	return cl, nil
}
