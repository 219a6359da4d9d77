package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	emrtypes "github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	ostypes "github.com/aws/aws-sdk-go-v2/service/opensearch/types"

	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// activeEMRStates are the cluster states checked; terminated clusters no longer hold the group.
var activeEMRStates = []emrtypes.ClusterState{
	emrtypes.ClusterStateStarting,
	emrtypes.ClusterStateRunning,
	emrtypes.ClusterStateWaiting,
}

// findSearchDomains lists domain names, then describes each for its VPC options.
// Public domains have no VPC options and never match.
func (p *Plugin) findSearchDomains(ctx context.Context, sgID string) (usage.Matches, error) {
	e := finder.Enricher[string, *ostypes.DomainStatus]{
		List: func(ctx context.Context) ([]string, error) {
			output, err := call(ctx, p, "list domain names", func(ctx context.Context) (*opensearch.ListDomainNamesOutput, error) {
				return p.opensearchClient.ListDomainNames(ctx, &opensearch.ListDomainNamesInput{})
			})
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(output.DomainNames))
			for _, d := range output.DomainNames {
				names = append(names, aws.ToString(d.DomainName))
			}
			return names, nil
		},
		Key: func(name string) string { return name },
		Enrich: func(ctx context.Context, name string) (*ostypes.DomainStatus, error) {
			op := "describe domain " + name
			output, err := call(ctx, p, op, func(ctx context.Context) (*opensearch.DescribeDomainOutput, error) {
				return p.opensearchClient.DescribeDomain(ctx, &opensearch.DescribeDomainInput{DomainName: aws.String(name)})
			})
			if err != nil {
				return nil, err
			}
			if output.DomainStatus == nil {
				return nil, usage.Malformed("%s: missing domain status", op)
			}
			return output.DomainStatus, nil
		},
		Match: func(d *ostypes.DomainStatus) bool {
			return d.VPCOptions != nil && containsGroup(d.VPCOptions.SecurityGroupIds, sgID)
		},
		Limit: p.describeConcurrency,
	}
	m, err := e.Run(ctx)
	logSkipped("opensearch", m)
	return m, err
}

// findEMRClusters lists active clusters, then describes each one. Only the EMR
// managed master and core/task groups are compared; additional groups are not.
// Matches are reported by cluster name.
func (p *Plugin) findEMRClusters(ctx context.Context, sgID string) (usage.Matches, error) {
	e := finder.Enricher[emrtypes.ClusterSummary, *emrtypes.Cluster]{
		List: func(ctx context.Context) ([]emrtypes.ClusterSummary, error) {
			output, err := call(ctx, p, "list emr clusters", func(ctx context.Context) (*emr.ListClustersOutput, error) {
				return p.emrClient.ListClusters(ctx, &emr.ListClustersInput{ClusterStates: activeEMRStates})
			})
			if err != nil {
				return nil, err
			}
			return output.Clusters, nil
		},
		Key: func(c emrtypes.ClusterSummary) string { return aws.ToString(c.Id) },
		Enrich: func(ctx context.Context, c emrtypes.ClusterSummary) (*emrtypes.Cluster, error) {
			op := "describe emr cluster " + aws.ToString(c.Id)
			output, err := call(ctx, p, op, func(ctx context.Context) (*emr.DescribeClusterOutput, error) {
				return p.emrClient.DescribeCluster(ctx, &emr.DescribeClusterInput{ClusterId: c.Id})
			})
			if err != nil {
				return nil, err
			}
			if output.Cluster == nil {
				return nil, usage.Malformed("%s: missing cluster", op)
			}
			return output.Cluster, nil
		},
		Emit: func(c emrtypes.ClusterSummary, detail *emrtypes.Cluster) []string {
			attrs := detail.Ec2InstanceAttributes
			if attrs == nil || !equalsAny(sgID, attrs.EmrManagedMasterSecurityGroup, attrs.EmrManagedSlaveSecurityGroup) {
				return nil
			}
			return []string{aws.ToString(c.Name)}
		},
		Limit: p.describeConcurrency,
	}
	m, err := e.Run(ctx)
	logSkipped("emr", m)
	return m, err
}

// findGlueConnections returns Glue connections whose physical requirements include sgID.
func (p *Plugin) findGlueConnections(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "get connections", func(ctx context.Context) (*glue.GetConnectionsOutput, error) {
		return p.glueClient.GetConnections(ctx, &glue.GetConnectionsInput{})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, conn := range output.ConnectionList {
		req := conn.PhysicalConnectionRequirements
		if req != nil && containsGroup(req.SecurityGroupIdList, sgID) {
			ids = append(ids, aws.ToString(conn.Name))
		}
	}
	return matched(ids), nil
}
