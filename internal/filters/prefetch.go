package filters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/catherinevee/custodianhub/internal/events"
	"github.com/catherinevee/custodianhub/internal/logger"
)

// prefetchInput carries the identifiers a prefetcher may describe.
type prefetchInput struct {
	info   *events.EventInfo
	arns   []string
	ids    []string
	names  []string
	region string
}

type prefetchFunc func(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error)

// prefetchers dispatches by resource type. Aliases share one entry via
// canonicalType. Types without an entry fall back to filters.
var prefetchers = map[string]prefetchFunc{
	"aws.ec2":               prefetchEC2Instances,
	"aws.ami":               prefetchImages,
	"aws.app-elb":           prefetchLoadBalancers,
	"aws.s3":                prefetchBucketStubs,
	"aws.efs":               prefetchFileSystems,
	"aws.rds":               prefetchDBInstances,
	"aws.rds-cluster":       prefetchDBInstances,
	"aws.elasticache":       prefetchCacheClusters,
	"aws.lambda":            prefetchFunctions,
	"aws.distribution":      prefetchDistributions,
	"aws.eks":               prefetchEKSClusters,
	"aws.ecr":               prefetchRepositories,
	"aws.dynamodb-table":    prefetchTables,
	"aws.kms":               prefetchKeys,
	"aws.secretsmanager":    prefetchSecrets,
	"aws.cloudwatch-alarm":  prefetchAlarms,
	"aws.iam-user":          prefetchIAMUsers,
	"aws.iam-role":          prefetchIAMRoles,
	"aws.vpc":               prefetchNetworking,
	"aws.subnet":            prefetchNetworking,
	"aws.security-group":    prefetchNetworking,
	"aws.network-acl":       prefetchNetworking,
	"aws.internet-gateway":  prefetchNetworking,
	"aws.nat-gateway":       prefetchNetworking,
	"aws.network-interface": prefetchNetworking,
}

// canonicalType folds resource-type aliases onto the table keys.
func canonicalType(resourceType string) string {
	switch resourceType {
	case "aws.elasticache-cluster", "aws.cache-cluster":
		return "aws.elasticache"
	case "aws.cloudfront", "aws.cloudfront-distribution":
		return "aws.distribution"
	case "aws.secrets-manager":
		return "aws.secretsmanager"
	}
	return resourceType
}

// prefetch runs the per-type best-effort describe pass. It never raises:
// any error degrades to "use filters only". Every returned descriptor is
// marked as event-matched and attributed to the event principal.
func prefetch(ctx context.Context, info *events.EventInfo, resourceType string, clients *Clients, region string) []Resource {
	fn, ok := prefetchers[canonicalType(resourceType)]
	if !ok {
		return nil
	}

	in := prefetchInput{
		info:   info,
		arns:   info.Generic.ARNs,
		ids:    info.Generic.IDs,
		names:  info.Generic.Names,
		region: region,
	}

	resources, err := fn(ctx, clients, in)
	if err != nil {
		log.Debug("prefetch failed, falling back to filters",
			logger.String("resource_type", resourceType),
			logger.Error(err))
		return nil
	}

	creator := info.Principal()
	for _, r := range resources {
		r[MatchedFiltersKey] = []string{eventFilterMark}
		if creator != "" {
			r[CreatorNameKey] = creator
		}
	}
	return resources
}

// toResource converts an SDK output struct into the generic descriptor map
// the engine operates on, preserving the SDK's PascalCase serialization.
func toResource(v interface{}) (Resource, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	return r, nil
}

func toResources(items interface{}) ([]Resource, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptors: %w", err)
	}
	var rs []Resource
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode descriptors: %w", err)
	}
	return rs, nil
}

// prefetchEC2Instances describes the instance IDs named by the event.
func prefetchEC2Instances(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	ids := filterIDs(in.ids, "i-")
	if len(ids) == 0 {
		return nil, nil
	}
	out, err := c.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids})
	if err != nil {
		return nil, err
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
}

// prefetchImages describes the AMI IDs named by the event.
func prefetchImages(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	ids := filterIDs(in.ids, "ami-")
	if len(ids) == 0 {
		return nil, nil
	}
	out, err := c.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: ids})
	if err != nil {
		return nil, err
	}
	return toResources(out.Images)
}

// prefetchNetworking handles the EC2-backed networking types with one
// dispatcher keyed on the ID prefix of the identifiers present.
func prefetchNetworking(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	if ids := filterIDs(in.ids, "vpc-"); len(ids) > 0 {
		out, err := c.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: ids})
		if err != nil {
			return nil, err
		}
		return toResources(out.Vpcs)
	}
	if ids := filterIDs(in.ids, "subnet-"); len(ids) > 0 {
		out, err := c.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: ids})
		if err != nil {
			return nil, err
		}
		return toResources(out.Subnets)
	}
	if ids := filterIDs(in.ids, "sg-"); len(ids) > 0 {
		out, err := c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: ids})
		if err != nil {
			return nil, err
		}
		return toResources(out.SecurityGroups)
	}
	if ids := filterIDs(in.ids, "acl-"); len(ids) > 0 {
		out, err := c.EC2.DescribeNetworkAcls(ctx, &ec2.DescribeNetworkAclsInput{NetworkAclIds: ids})
		if err != nil {
			return nil, err
		}
		return toResources(out.NetworkAcls)
	}
	if ids := filterIDs(in.ids, "igw-"); len(ids) > 0 {
		out, err := c.EC2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{InternetGatewayIds: ids})
		if err != nil {
			return nil, err
		}
		return toResources(out.InternetGateways)
	}
	if ids := filterIDs(in.ids, "nat-"); len(ids) > 0 {
		out, err := c.EC2.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{NatGatewayIds: ids})
		if err != nil {
			return nil, err
		}
		return toResources(out.NatGateways)
	}
	if ids := filterIDs(in.ids, "eni-"); len(ids) > 0 {
		out, err := c.EC2.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{NetworkInterfaceIds: ids})
		if err != nil {
			return nil, err
		}
		return toResources(out.NetworkInterfaces)
	}
	return nil, nil
}

// prefetchBucketStubs builds name-only descriptors for buckets: downstream
// filters describe further on demand, so an existence call buys nothing.
func prefetchBucketStubs(ctx context.Context, c *Clients, in prefetchInput) ([]Resource, error) {
	names := in.names
	if len(names) == 0 && in.info.BucketName != "" {
		names = []string{in.info.BucketName}
	}
	var resources []Resource
	for _, name := range names {
		resources = append(resources, Resource{"Name": name})
	}
	return resources, nil
}
