package filters

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// prefetchLoadBalancers describes the load balancer ARNs the event names,
// including ARNs the classifier reconstructed from listener ARNs.
func prefetchLoadBalancers(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var lbARNs []string
	for _, arn := range in.arns {
		if strings.Contains(arn, ":loadbalancer/") {
			lbARNs = append(lbARNs, arn)
		}
	}
	if in.info.LoadBalancerARN != "" && !contains(lbARNs, in.info.LoadBalancerARN) {
		lbARNs = append(lbARNs, in.info.LoadBalancerARN)
	}
	if len(lbARNs) == 0 {
		return nil, nil
	}
	out, err := c.ELBV2.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{LoadBalancerArns: lbARNs})
	if err != nil {
		return nil, err
	}
	return toResources(out.LoadBalancers)
}

// prefetchCacheClusters synthesizes a descriptor from the create event's
// response elements when possible; clusters in "creating" state are not
// reliably queryable yet. Other events describe by cluster ID.
func prefetchCacheClusters(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	if r := synthesizeCacheCluster(in.info); r != nil {
		return []Resource{r}, nil
	}

	cacheIDs := in.ids
	if len(cacheIDs) == 0 {
		for _, arn := range in.arns {
			cacheIDs = append(cacheIDs, lastARNComponent(arn))
		}
	}
	var resources []Resource
	for _, id := range cacheIDs {
		out, err := c.ElastiCache.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
			CacheClusterId:    aws.String(id),
			ShowCacheNodeInfo: aws.Bool(false),
		})
		if err != nil {
			continue
		}
		rs, err := toResources(out.CacheClusters)
		if err != nil {
			return nil, err
		}
		resources = append(resources, rs...)
	}
	return resources, nil
}

// prefetchDistributions synthesizes a CloudFront descriptor from create and
// update events, and fetches by distribution ID otherwise.
func prefetchDistributions(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	if r := synthesizeDistribution(in.info); r != nil {
		return []Resource{r}, nil
	}

	var resources []Resource
	for _, id := range in.ids {
		// Exclude S3 origin IDs and other long identifiers that only look
		// like distribution IDs.
		if strings.HasPrefix(id, "S3-") || len(id) >= 20 {
			continue
		}
		out, err := c.CloudFront.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(id)})
		if err != nil || out.Distribution == nil {
			continue
		}
		r, err := toResource(out.Distribution)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// prefetchDBInstances tries each identifier as a DB instance first and
// falls back to a cluster lookup, covering both aws.rds and
// aws.rds-cluster mappings.
func prefetchDBInstances(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var resources []Resource
	for _, id := range in.ids {
		out, err := c.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: aws.String(id)})
		if err == nil {
			rs, convErr := toResources(out.DBInstances)
			if convErr != nil {
				return nil, convErr
			}
			resources = append(resources, rs...)
			continue
		}
		clusterOut, err := c.RDS.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{DBClusterIdentifier: aws.String(id)})
		if err != nil {
			continue
		}
		rs, convErr := toResources(clusterOut.DBClusters)
		if convErr != nil {
			return nil, convErr
		}
		resources = append(resources, rs...)
	}
	return resources, nil
}

// prefetchFunctions fetches the configuration of each named function.
func prefetchFunctions(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var resources []Resource
	for _, name := range in.names {
		out, err := c.Lambda.GetFunction(ctx, &awslambda.GetFunctionInput{FunctionName: aws.String(name)})
		if err != nil || out.Configuration == nil {
			continue
		}
		r, err := toResource(out.Configuration)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// prefetchFileSystems describes the EFS file system IDs named by the event.
func prefetchFileSystems(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var resources []Resource
	for _, id := range filterIDs(in.ids, "fs-") {
		out, err := c.EFS.DescribeFileSystems(ctx, &efs.DescribeFileSystemsInput{FileSystemId: aws.String(id)})
		if err != nil {
			continue
		}
		rs, err := toResources(out.FileSystems)
		if err != nil {
			return nil, err
		}
		resources = append(resources, rs...)
	}
	return resources, nil
}

// prefetchEKSClusters describes each named cluster.
func prefetchEKSClusters(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var resources []Resource
	for _, name := range in.names {
		out, err := c.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
		if err != nil || out.Cluster == nil {
			continue
		}
		r, err := toResource(out.Cluster)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// prefetchRepositories describes each named ECR repository.
func prefetchRepositories(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var resources []Resource
	for _, name := range in.names {
		out, err := c.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{RepositoryNames: []string{name}})
		if err != nil {
			continue
		}
		rs, err := toResources(out.Repositories)
		if err != nil {
			return nil, err
		}
		resources = append(resources, rs...)
	}
	return resources, nil
}

// prefetchTables describes each named DynamoDB table.
func prefetchTables(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var resources []Resource
	for _, name := range in.names {
		out, err := c.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
		if err != nil || out.Table == nil {
			continue
		}
		r, err := toResource(out.Table)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// prefetchKeys describes KMS keys by ID or ARN.
func prefetchKeys(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	keyIDs := in.ids
	if len(keyIDs) == 0 {
		keyIDs = in.arns
	}
	var resources []Resource
	for _, id := range keyIDs {
		out, err := c.KMS.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(id)})
		if err != nil || out.KeyMetadata == nil {
			continue
		}
		r, err := toResource(out.KeyMetadata)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// prefetchSecrets describes secrets by ID or name.
func prefetchSecrets(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	secretIDs := in.ids
	if len(secretIDs) == 0 {
		secretIDs = in.names
	}
	var resources []Resource
	for _, id := range secretIDs {
		out, err := c.SecretsManager.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(id)})
		if err != nil {
			continue
		}
		r, err := toResource(out)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// prefetchAlarms describes the named CloudWatch alarms in one call.
func prefetchAlarms(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	if len(in.names) == 0 {
		return nil, nil
	}
	out, err := c.CloudWatch.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{AlarmNames: in.names})
	if err != nil {
		return nil, err
	}
	return toResources(out.MetricAlarms)
}

// prefetchIAMUsers describes each named IAM user. The typed UserName field
// covers events where the generic walk found nothing.
func prefetchIAMUsers(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	names := in.names
	if len(names) == 0 && in.info.UserName != "" {
		names = []string{in.info.UserName}
	}
	var resources []Resource
	for _, name := range names {
		out, err := c.IAM.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(name)})
		if err != nil || out.User == nil {
			continue
		}
		r, err := toResource(out.User)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// prefetchIAMRoles describes each named IAM role.
func prefetchIAMRoles(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	var resources []Resource
	for _, name := range in.names {
		out, err := c.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
		if err != nil || out.Role == nil {
			continue
		}
		r, err := toResource(out.Role)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// lastARNComponent returns the final colon-delimited component of an ARN.
func lastARNComponent(arn string) string {
	parts := strings.Split(arn, ":")
	return parts[len(parts)-1]
}
