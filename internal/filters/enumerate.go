package filters

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/catherinevee/custodianhub/internal/apperrors"
)

// ErrEnumerationUnsupported reports a resource type Enumerate has no
// listing call for. Callers holding event-derived filters can treat it as
// an empty candidate set instead of a failure.
var ErrEnumerationUnsupported = errors.New("enumeration not supported")

// Enumerate lists every resource of the given type in the tenant account.
// The engine only reaches this path when the event supplied no descriptors,
// so coverage follows the clients the prefetch pass already carries;
// anything else reports ErrEnumerationUnsupported.
func Enumerate(ctx context.Context, c *Clients, resourceType string) ([]Resource, error) {
	switch canonicalType(resourceType) {
	case "aws.ec2":
		out, err := c.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate instances: %w", err)
		}
		var resources []Resource
		for _, reservation := range out.Reservations {
			rs, err := toResources(reservation.Instances)
			if err != nil {
				return nil, err
			}
			resources = append(resources, rs...)
		}
		return resources, nil

	case "aws.app-elb":
		out, err := c.ELBV2.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate load balancers: %w", err)
		}
		return toResources(out.LoadBalancers)

	case "aws.elasticache":
		out, err := c.ElastiCache.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate cache clusters: %w", err)
		}
		return toResources(out.CacheClusters)

	case "aws.rds":
		out, err := c.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate db instances: %w", err)
		}
		return toResources(out.DBInstances)

	case "aws.lambda":
		out, err := c.Lambda.ListFunctions(ctx, &awslambda.ListFunctionsInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate functions: %w", err)
		}
		return toResources(out.Functions)

	case "aws.s3":
		out, err := c.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate buckets: %w", err)
		}
		return toResources(out.Buckets)

	case "aws.efs":
		out, err := c.EFS.DescribeFileSystems(ctx, &efs.DescribeFileSystemsInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate file systems: %w", err)
		}
		return toResources(out.FileSystems)

	case "aws.ecr", "aws.ecr-repository":
		out, err := c.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate repositories: %w", err)
		}
		return toResources(out.Repositories)

	case "aws.cloudwatch-alarm":
		out, err := c.CloudWatch.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate alarms: %w", err)
		}
		return toResources(out.MetricAlarms)

	case "aws.security-group":
		out, err := c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate security groups: %w", err)
		}
		return toResources(out.SecurityGroups)

	case "aws.vpc":
		out, err := c.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate vpcs: %w", err)
		}
		return toResources(out.Vpcs)

	case "aws.subnet":
		out, err := c.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate subnets: %w", err)
		}
		return toResources(out.Subnets)
	}

	return nil, apperrors.Wrap(apperrors.KindPolicyExecution,
		fmt.Sprintf("no listing for resource type %q", resourceType), ErrEnumerationUnsupported)
}
