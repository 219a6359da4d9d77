package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/docdb"
	docdbtypes "github.com/aws/aws-sdk-go-v2/service/docdb/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"

	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// findDBInstances returns RDS instances whose VPC security groups include sgID.
func (p *Plugin) findDBInstances(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "describe db instances", func(ctx context.Context) (*rds.DescribeDBInstancesOutput, error) {
		return p.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, instance := range output.DBInstances {
		for _, sg := range instance.VpcSecurityGroups {
			if aws.ToString(sg.VpcSecurityGroupId) == sgID {
				ids = append(ids, aws.ToString(instance.DBInstanceIdentifier))
				break
			}
		}
	}
	return matched(ids), nil
}

// findDocDBClusters returns DocumentDB clusters whose VPC security groups include sgID.
// DescribeDBClusters is shared with RDS and Neptune, so the engine filter keeps results to DocumentDB.
func (p *Plugin) findDocDBClusters(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "describe docdb clusters", func(ctx context.Context) (*docdb.DescribeDBClustersOutput, error) {
		return p.docdbClient.DescribeDBClusters(ctx, &docdb.DescribeDBClustersInput{
			Filters: []docdbtypes.Filter{{Name: aws.String("engine"), Values: []string{"docdb"}}},
		})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, cluster := range output.DBClusters {
		for _, sg := range cluster.VpcSecurityGroups {
			if aws.ToString(sg.VpcSecurityGroupId) == sgID {
				ids = append(ids, aws.ToString(cluster.DBClusterIdentifier))
				break
			}
		}
	}
	return matched(ids), nil
}

// findCacheClusters lists cache cluster ids, then describes each one for its security groups.
func (p *Plugin) findCacheClusters(ctx context.Context, sgID string) (usage.Matches, error) {
	e := finder.Enricher[string, ectypes.CacheCluster]{
		List: func(ctx context.Context) ([]string, error) {
			output, err := call(ctx, p, "describe cache clusters", func(ctx context.Context) (*elasticache.DescribeCacheClustersOutput, error) {
				return p.elasticacheClient.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
					ShowCacheNodeInfo: aws.Bool(false),
				})
			})
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(output.CacheClusters))
			for _, c := range output.CacheClusters {
				ids = append(ids, aws.ToString(c.CacheClusterId))
			}
			return ids, nil
		},
		Key: func(id string) string { return id },
		Enrich: func(ctx context.Context, id string) (ectypes.CacheCluster, error) {
			op := "describe cache cluster " + id
			output, err := call(ctx, p, op, func(ctx context.Context) (*elasticache.DescribeCacheClustersOutput, error) {
				return p.elasticacheClient.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
					CacheClusterId: aws.String(id),
				})
			})
			if err != nil {
				return ectypes.CacheCluster{}, err
			}
			if len(output.CacheClusters) == 0 {
				return ectypes.CacheCluster{}, usage.Malformed("%s: cluster missing from response", op)
			}
			return output.CacheClusters[0], nil
		},
		Match: func(c ectypes.CacheCluster) bool {
			for _, sg := range c.SecurityGroups {
				if aws.ToString(sg.SecurityGroupId) == sgID {
					return true
				}
			}
			return false
		},
		Limit: p.describeConcurrency,
	}
	m, err := e.Run(ctx)
	logSkipped("elasticache", m)
	return m, err
}

// findRedshiftClusters returns Redshift clusters whose VPC security groups include sgID.
func (p *Plugin) findRedshiftClusters(ctx context.Context, sgID string) (usage.Matches, error) {
	output, err := call(ctx, p, "describe redshift clusters", func(ctx context.Context) (*redshift.DescribeClustersOutput, error) {
		return p.redshiftClient.DescribeClusters(ctx, &redshift.DescribeClustersInput{})
	})
	if err != nil {
		return usage.Matches{}, err
	}

	var ids []string
	for _, cluster := range output.Clusters {
		for _, sg := range cluster.VpcSecurityGroups {
			if aws.ToString(sg.VpcSecurityGroupId) == sgID {
				ids = append(ids, aws.ToString(cluster.ClusterIdentifier))
				break
			}
		}
	}
	return matched(ids), nil
}
