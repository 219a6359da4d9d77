package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// findInstances returns EC2 instances with sgID attached. EC2 filters server-side.
func (p *Plugin) findInstances(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "describe instances", func(ctx context.Context) (*ec2.DescribeInstancesOutput, error) {
		return p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			Filters: []ec2types.Filter{{Name: aws.String("instance.group-id"), Values: []string{sgID}}},
		})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, reservation := range output.Reservations {
		for _, instance := range reservation.Instances {
			ids = append(ids, aws.ToString(instance.InstanceId))
		}
	}
	return matched(ids), nil
}

// findNetworkInterfaces returns ENIs with sgID attached.
func (p *Plugin) findNetworkInterfaces(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "describe network interfaces", func(ctx context.Context) (*ec2.DescribeNetworkInterfacesOutput, error) {
		return p.ec2Client.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
			Filters: []ec2types.Filter{{Name: aws.String("group-id"), Values: []string{sgID}}},
		})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, eni := range output.NetworkInterfaces {
		ids = append(ids, aws.ToString(eni.NetworkInterfaceId))
	}
	return matched(ids), nil
}

// findLoadBalancers returns ALBs and NLBs that list sgID. Gateway load balancers carry no groups.
func (p *Plugin) findLoadBalancers(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "describe load balancers", func(ctx context.Context) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
		return p.elbClient.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, lb := range output.LoadBalancers {
		if containsGroup(lb.SecurityGroups, sgID) {
			ids = append(ids, aws.ToString(lb.LoadBalancerName))
		}
	}
	return matched(ids), nil
}
