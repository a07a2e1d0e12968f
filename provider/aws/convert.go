package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/projecteru2/remote/types"
)

// stateOf maps an EC2 state onto the generic lifecycle. shutting-down only
// ever ends in terminated, so it is reported as terminated already.
func stateOf(s *ec2types.InstanceState) types.Status {
	if s == nil {
		return types.StatusUnknown
	}
	switch s.Name {
	case ec2types.InstanceStateNamePending:
		return types.StatusStarting
	case ec2types.InstanceStateNameRunning:
		return types.StatusRunning
	case ec2types.InstanceStateNameStopping:
		return types.StatusStopping
	case ec2types.InstanceStateNameStopped:
		return types.StatusStopped
	case ec2types.InstanceStateNameShuttingDown, ec2types.InstanceStateNameTerminated:
		return types.StatusTerminated
	default:
		return types.StatusUnknown
	}
}

func rawState(s *ec2types.InstanceState) string {
	if s == nil {
		return ""
	}
	return string(s.Name)
}

func tagMap(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m
}

func descriptorOf(in ec2types.Instance) types.InstanceDescriptor {
	tags := tagMap(in.Tags)
	d := types.InstanceDescriptor{
		InstanceID:   aws.ToString(in.InstanceId),
		Name:         tags["Name"],
		InstanceType: string(in.InstanceType),
		Status:       stateOf(in.State),
		PublicDNS:    aws.ToString(in.PublicDnsName),
		LaunchedAt:   in.LaunchTime,
		Tags:         tags,
	}
	if in.Placement != nil {
		d.Zone = aws.ToString(in.Placement.AvailabilityZone)
	}
	return d
}
