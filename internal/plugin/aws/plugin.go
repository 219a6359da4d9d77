// Package aws implements the AWS security group lookups for sgscope.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/docdb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// Plugin holds one client per backing service, all bound to a single region.
type Plugin struct {
	region              string
	describeConcurrency int
	limiter             *rate.Limiter

	// AWS clients (interfaces for testability)
	ec2Client         EC2API
	rdsClient         RDSAPI
	docdbClient       DocDBAPI
	elasticacheClient ElastiCacheAPI
	opensearchClient  OpenSearchAPI
	elbClient         ELBAPI
	ecsClient         ECSAPI
	eksClient         EKSAPI
	redshiftClient    RedshiftAPI
	emrClient         EMRAPI
	beanstalkClient   BeanstalkAPI
	sagemakerClient   SageMakerAPI
	batchClient       BatchAPI
	glueClient        GlueAPI
}

// Config holds AWS plugin configuration.
type Config struct {
	Region              string
	Profile             string  // Shared config profile; empty uses the default chain
	RequestsPerSecond   float64 // API call budget across all lookups; zero disables limiting
	Burst               int
	DescribeConcurrency int // Per-provider describe fan-out for two-phase lookups
}

// New creates a new AWS plugin. The SDK retryer is disabled: a failed call is
// reported as is, never retried.
func New(ctx context.Context, cfg Config) (*Plugin, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		return nil, fmt.Errorf("no region configured")
	}

	p := newPlugin(awsCfg.Region, cfg)
	p.ec2Client = ec2.NewFromConfig(awsCfg)
	p.rdsClient = rds.NewFromConfig(awsCfg)
	p.docdbClient = docdb.NewFromConfig(awsCfg)
	p.elasticacheClient = elasticache.NewFromConfig(awsCfg)
	p.opensearchClient = opensearch.NewFromConfig(awsCfg)
	p.elbClient = elasticloadbalancingv2.NewFromConfig(awsCfg)
	p.ecsClient = ecs.NewFromConfig(awsCfg)
	p.eksClient = eks.NewFromConfig(awsCfg)
	p.redshiftClient = redshift.NewFromConfig(awsCfg)
	p.emrClient = emr.NewFromConfig(awsCfg)
	p.beanstalkClient = elasticbeanstalk.NewFromConfig(awsCfg)
	p.sagemakerClient = sagemaker.NewFromConfig(awsCfg)
	p.batchClient = batch.NewFromConfig(awsCfg)
	p.glueClient = glue.NewFromConfig(awsCfg)

	return p, nil
}

func newPlugin(region string, cfg Config) *Plugin {
	p := &Plugin{
		region:              region,
		describeConcurrency: cfg.DescribeConcurrency,
	}
	if p.describeConcurrency <= 0 {
		p.describeConcurrency = finder.DefaultEnrichConcurrency
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "aws"
}

// Region returns the region every client is bound to.
func (p *Plugin) Region() string {
	return p.region
}

// Providers returns the lookup registry in scan order.
func (p *Plugin) Providers() []finder.Provider {
	return []finder.Provider{
		{Name: "ec2", Title: "EC2 Instances", Shape: finder.ShapeSingle, Lookup: p.findInstances},
		{Name: "eni", Title: "ENIs", Shape: finder.ShapeSingle, Lookup: p.findNetworkInterfaces},
		{Name: "rds", Title: "RDS Instances", Shape: finder.ShapeSingle, Lookup: p.findDBInstances},
		{Name: "docdb", Title: "DocumentDB Clusters", Shape: finder.ShapeSingle, Lookup: p.findDocDBClusters},
		{Name: "elasticache", Title: "ElastiCache Clusters", Shape: finder.ShapeTwoPhase, Lookup: p.findCacheClusters},
		{Name: "opensearch", Title: "OpenSearch Domains", Shape: finder.ShapeTwoPhase, Lookup: p.findSearchDomains},
		{Name: "elbv2", Title: "ELBv2 Load Balancers", Shape: finder.ShapeSingle, Lookup: p.findLoadBalancers},
		{Name: "ecs", Title: "ECS Services", Shape: finder.ShapeTwoPhase, Lookup: p.findECSServices},
		{Name: "eks", Title: "EKS Clusters", Shape: finder.ShapeTwoPhase, Lookup: p.findEKSClusters},
		{Name: "redshift", Title: "Redshift Clusters", Shape: finder.ShapeSingle, Lookup: p.findRedshiftClusters},
		{Name: "emr", Title: "EMR Clusters", Shape: finder.ShapeTwoPhase, Lookup: p.findEMRClusters},
		{Name: "elasticbeanstalk", Title: "Elastic Beanstalk Environments", Shape: finder.ShapeTwoPhase, Lookup: p.findBeanstalkEnvironments},
		{Name: "sagemaker", Title: "SageMaker Endpoints", Shape: finder.ShapeTwoPhase, Lookup: p.findSageMakerEndpoints},
		{Name: "batch", Title: "AWS Batch Compute Environments", Shape: finder.ShapeSingle, Lookup: p.findComputeEnvironments},
		{Name: "glue", Title: "Glue Connections", Shape: finder.ShapeSingle, Lookup: p.findGlueConnections},
	}
}

// Catalog returns the provider registry without any clients bound, for listing.
// Its lookups must not be called.
func Catalog() []finder.Provider {
	return newPlugin("", Config{}).Providers()
}

// throttle blocks until the shared API budget allows another call.
func (p *Plugin) throttle(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot be met; report that as the context error.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("rate limit: %w", context.DeadlineExceeded)
	}
	return nil
}

// call runs one AWS API call under the rate limit and classifies its error.
// A nil response without an error is reported as malformed.
func call[T comparable](ctx context.Context, p *Plugin, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.throttle(ctx); err != nil {
		return zero, classify(op, err)
	}

	out, err := fn(ctx)
	if err != nil {
		return zero, classify(op, err)
	}
	if out == zero {
		return zero, usage.Malformed("%s: empty response", op)
	}
	return out, nil
}

func matched(ids []string) usage.Matches {
	if ids == nil {
		ids = []string{}
	}
	return usage.Matches{IDs: ids}
}

func logSkipped(provider string, m usage.Matches) {
	for _, s := range m.Skipped {
		log.Debug().Str("provider", provider).Str("item", s.Item).Err(s.Err).Msg("item skipped")
	}
}
