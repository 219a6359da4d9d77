package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// DescribeServices accepts at most 10 services per call.
const ecsDescribeBatch = 10

// findECSServices lists clusters, then the services in each cluster, and
// matches on the awsvpc network configuration. Services are reported as
// "name (clusterArn)" since names are only unique within a cluster.
func (p *Plugin) findECSServices(ctx context.Context, sgID string) (usage.Matches, error) {
	e := finder.Enricher[string, []ecstypes.Service]{
		List: func(ctx context.Context) ([]string, error) {
			output, err := call(ctx, p, "list ecs clusters", func(ctx context.Context) (*ecs.ListClustersOutput, error) {
				return p.ecsClient.ListClusters(ctx, &ecs.ListClustersInput{})
			})
			if err != nil {
				return nil, err
			}
			return output.ClusterArns, nil
		},
		Key:    func(cluster string) string { return cluster },
		Enrich: p.describeECSServices,
		Emit: func(cluster string, services []ecstypes.Service) []string {
			var ids []string
			for _, svc := range services {
				if ecsServiceUsesGroup(svc, sgID) {
					ids = append(ids, fmt.Sprintf("%s (%s)", aws.ToString(svc.ServiceName), cluster))
				}
			}
			return ids
		},
		Limit: p.describeConcurrency,
	}
	m, err := e.Run(ctx)
	logSkipped("ecs", m)
	return m, err
}

func (p *Plugin) describeECSServices(ctx context.Context, cluster string) ([]ecstypes.Service, error) {
	listed, err := call(ctx, p, "list ecs services in "+cluster, func(ctx context.Context) (*ecs.ListServicesOutput, error) {
		return p.ecsClient.ListServices(ctx, &ecs.ListServicesInput{Cluster: aws.String(cluster)})
	})
	if err != nil {
		return nil, err
	}

	var services []ecstypes.Service
	for start := 0; start < len(listed.ServiceArns); start += ecsDescribeBatch {
		end := min(start+ecsDescribeBatch, len(listed.ServiceArns))
		arns := listed.ServiceArns[start:end]

		output, err := call(ctx, p, "describe ecs services in "+cluster, func(ctx context.Context) (*ecs.DescribeServicesOutput, error) {
			return p.ecsClient.DescribeServices(ctx, &ecs.DescribeServicesInput{
				Cluster:  aws.String(cluster),
				Services: arns,
			})
		})
		if err != nil {
			return nil, err
		}

		for _, f := range output.Failures {
			log.Debug().
				Str("cluster", cluster).
				Str("service", aws.ToString(f.Arn)).
				Str("reason", aws.ToString(f.Reason)).
				Msg("ecs service not described")
		}
		services = append(services, output.Services...)
	}
	return services, nil
}

func ecsServiceUsesGroup(svc ecstypes.Service, sgID string) bool {
	if svc.NetworkConfiguration == nil || svc.NetworkConfiguration.AwsvpcConfiguration == nil {
		return false
	}
	return containsGroup(svc.NetworkConfiguration.AwsvpcConfiguration.SecurityGroups, sgID)
}

// findEKSClusters lists cluster names, then describes each for its VPC config.
// Only the additional security groups are checked, not the cluster security group EKS creates.
func (p *Plugin) findEKSClusters(ctx context.Context, sgID string) (usage.Matches, error) {
	e := finder.Enricher[string, *ekstypes.Cluster]{
		List: func(ctx context.Context) ([]string, error) {
			output, err := call(ctx, p, "list eks clusters", func(ctx context.Context) (*eks.ListClustersOutput, error) {
				return p.eksClient.ListClusters(ctx, &eks.ListClustersInput{})
			})
			if err != nil {
				return nil, err
			}
			return output.Clusters, nil
		},
		Key: func(name string) string { return name },
		Enrich: func(ctx context.Context, name string) (*ekstypes.Cluster, error) {
			op := "describe eks cluster " + name
			output, err := call(ctx, p, op, func(ctx context.Context) (*eks.DescribeClusterOutput, error) {
				return p.eksClient.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			})
			if err != nil {
				return nil, err
			}
			if output.Cluster == nil {
				return nil, usage.Malformed("%s: missing cluster", op)
			}
			return output.Cluster, nil
		},
		Match: func(c *ekstypes.Cluster) bool {
			return c.ResourcesVpcConfig != nil && containsGroup(c.ResourcesVpcConfig.SecurityGroupIds, sgID)
		},
		Limit: p.describeConcurrency,
	}
	m, err := e.Run(ctx)
	logSkipped("eks", m)
	return m, err
}

// findComputeEnvironments returns Batch compute environments whose compute
// resources use sgID. Unmanaged environments have no compute resources.
func (p *Plugin) findComputeEnvironments(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "describe compute environments", func(ctx context.Context) (*batch.DescribeComputeEnvironmentsOutput, error) {
		return p.batchClient.DescribeComputeEnvironments(ctx, &batch.DescribeComputeEnvironmentsInput{})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, env := range output.ComputeEnvironments {
		if env.ComputeResources != nil && containsGroup(env.ComputeResources.SecurityGroupIds, sgID) {
			ids = append(ids, aws.ToString(env.ComputeEnvironmentName))
		}
	}
	return matched(ids), nil
}
