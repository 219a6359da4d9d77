package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"

	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// beanstalkSecurityGroupsOption holds a comma-separated list of group ids.
const beanstalkSecurityGroupsOption = "SecurityGroups"

// findBeanstalkEnvironments lists environments, then reads the option settings
// of each. Only the first configuration settings entry is inspected.
func (p *Plugin) findBeanstalkEnvironments(ctx context.Context, sgID string) (usage.Matches, error) {
	e := finder.Enricher[ebtypes.EnvironmentDescription, []ebtypes.ConfigurationOptionSetting]{
		List: func(ctx context.Context) ([]ebtypes.EnvironmentDescription, error) {
			output, err := call(ctx, p, "describe environments", func(ctx context.Context) (*elasticbeanstalk.DescribeEnvironmentsOutput, error) {
				return p.beanstalkClient.DescribeEnvironments(ctx, &elasticbeanstalk.DescribeEnvironmentsInput{})
			})
			if err != nil {
				return nil, err
			}
			return output.Environments, nil
		},
		Key: func(env ebtypes.EnvironmentDescription) string { return aws.ToString(env.EnvironmentName) },
		Enrich: func(ctx context.Context, env ebtypes.EnvironmentDescription) ([]ebtypes.ConfigurationOptionSetting, error) {
			op := "describe configuration settings " + aws.ToString(env.EnvironmentName)
			output, err := call(ctx, p, op, func(ctx context.Context) (*elasticbeanstalk.DescribeConfigurationSettingsOutput, error) {
				return p.beanstalkClient.DescribeConfigurationSettings(ctx, &elasticbeanstalk.DescribeConfigurationSettingsInput{
					ApplicationName: env.ApplicationName,
					EnvironmentName: env.EnvironmentName,
				})
			})
			if err != nil {
				return nil, err
			}
			if len(output.ConfigurationSettings) == 0 {
				return nil, nil
			}
			return output.ConfigurationSettings[0].OptionSettings, nil
		},
		Match: func(settings []ebtypes.ConfigurationOptionSetting) bool {
			for _, opt := range settings {
				if aws.ToString(opt.OptionName) == beanstalkSecurityGroupsOption && tokenMatch(aws.ToString(opt.Value), sgID) {
					return true
				}
			}
			return false
		},
		Limit: p.describeConcurrency,
	}
	m, err := e.Run(ctx)
	logSkipped("elasticbeanstalk", m)
	return m, err
}

// findSageMakerEndpoints lists endpoints and follows each one to its endpoint
// config and the models behind its production variants. The endpoint matches
// when any of those models runs in a VPC with sgID.
func (p *Plugin) findSageMakerEndpoints(ctx context.Context, sgID string) (usage.Matches, error) {
	e := finder.Enricher[string, []string]{
		List: func(ctx context.Context) ([]string, error) {
			output, err := call(ctx, p, "list endpoints", func(ctx context.Context) (*sagemaker.ListEndpointsOutput, error) {
				return p.sagemakerClient.ListEndpoints(ctx, &sagemaker.ListEndpointsInput{})
			})
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(output.Endpoints))
			for _, ep := range output.Endpoints {
				names = append(names, aws.ToString(ep.EndpointName))
			}
			return names, nil
		},
		Key:    func(name string) string { return name },
		Enrich: p.endpointSecurityGroups,
		Match: func(groups []string) bool {
			return containsGroup(groups, sgID)
		},
		Limit: p.describeConcurrency,
	}
	m, err := e.Run(ctx)
	logSkipped("sagemaker", m)
	return m, err
}

// endpointSecurityGroups resolves endpoint -> endpoint config -> models and
// collects the VPC security groups of every model.
func (p *Plugin) endpointSecurityGroups(ctx context.Context, endpoint string) ([]string, error) {
	ep, err := call(ctx, p, "describe endpoint "+endpoint, func(ctx context.Context) (*sagemaker.DescribeEndpointOutput, error) {
		return p.sagemakerClient.DescribeEndpoint(ctx, &sagemaker.DescribeEndpointInput{EndpointName: aws.String(endpoint)})
	})
	if err != nil {
		return nil, err
	}
	if ep.EndpointConfigName == nil {
		return nil, usage.Malformed("describe endpoint %s: missing endpoint config name", endpoint)
	}

	configName := aws.ToString(ep.EndpointConfigName)
	cfg, err := call(ctx, p, "describe endpoint config "+configName, func(ctx context.Context) (*sagemaker.DescribeEndpointConfigOutput, error) {
		return p.sagemakerClient.DescribeEndpointConfig(ctx, &sagemaker.DescribeEndpointConfigInput{EndpointConfigName: ep.EndpointConfigName})
	})
	if err != nil {
		return nil, err
	}

	var groups []string
	seen := make(map[string]bool)
	for _, variant := range cfg.ProductionVariants {
		model := aws.ToString(variant.ModelName)
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		out, err := call(ctx, p, "describe model "+model, func(ctx context.Context) (*sagemaker.DescribeModelOutput, error) {
			return p.sagemakerClient.DescribeModel(ctx, &sagemaker.DescribeModelInput{ModelName: variant.ModelName})
		})
		if err != nil {
			return nil, err
		}
		if out.VpcConfig != nil {
			groups = append(groups, out.VpcConfig.SecurityGroupIds...)
		}
	}
	return groups, nil
}
