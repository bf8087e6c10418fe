// Package filters turns the resources named by an event into the smallest
// correct policy input: precise value filters the engine can evaluate, or a
// pre-fetched descriptor list that bypasses enumeration entirely.
package filters

import "strings"

// fieldSpec describes how the policy engine addresses one resource type.
// A single table drives the whole builder: the attribute matched by ARN, by
// opaque ID, by human name, an optional ID prefix guard, and the ARN service
// components the type is compatible with.
type fieldSpec struct {
	ARNField  string
	IDField   string
	NameField string
	IDPrefix  string
	Services  []string
}

var resourceTypes = map[string]fieldSpec{
	// Compute
	"aws.ec2":                 {ARNField: "Arn", IDField: "InstanceId", IDPrefix: "i-", Services: []string{"ec2"}},
	"aws.ami":                 {IDField: "ImageId", IDPrefix: "ami-", Services: []string{"ec2"}},
	"aws.lambda":              {ARNField: "FunctionArn", IDField: "FunctionName", NameField: "FunctionName", Services: []string{"lambda"}},
	"aws.lambda-layer":        {ARNField: "LayerVersionArn", Services: []string{"lambda"}},
	"aws.ecs-cluster":         {ARNField: "clusterArn", IDField: "clusterArn", Services: []string{"ecs"}},
	"aws.ecs-service":         {ARNField: "serviceArn", Services: []string{"ecs"}},
	"aws.ecs-task":            {ARNField: "taskArn", Services: []string{"ecs"}},
	"aws.ecs-task-definition": {ARNField: "taskDefinitionArn", Services: []string{"ecs"}},
	"aws.eks":                 {ARNField: "arn", IDField: "name", NameField: "name", Services: []string{"eks"}},

	// Load balancing
	"aws.app-elb": {ARNField: "LoadBalancerArn", NameField: "LoadBalancerName", Services: []string{"elasticloadbalancing"}},
	"aws.elb":     {ARNField: "LoadBalancerArn", NameField: "LoadBalancerName", Services: []string{"elasticloadbalancing"}},

	// Storage
	"aws.s3":             {ARNField: "Arn", NameField: "Name", Services: []string{"s3"}},
	"aws.ebs":            {ARNField: "VolumeArn", IDField: "VolumeId", IDPrefix: "vol-", Services: []string{"ec2"}},
	"aws.ebs-snapshot":   {ARNField: "SnapshotArn", IDField: "SnapshotId", IDPrefix: "snap-", Services: []string{"ec2"}},
	"aws.efs":            {ARNField: "FileSystemArn", IDField: "FileSystemId", IDPrefix: "fs-", Services: []string{"elasticfilesystem"}},
	"aws.dynamodb-table": {ARNField: "TableArn", IDField: "TableName", NameField: "TableName", Services: []string{"dynamodb"}},

	// Database
	"aws.rds":                  {ARNField: "DBInstanceArn", IDField: "DBInstanceIdentifier", NameField: "DBInstanceIdentifier", Services: []string{"rds"}},
	"aws.rds-cluster":          {ARNField: "DBClusterArn", IDField: "DBClusterIdentifier", NameField: "DBClusterIdentifier", Services: []string{"rds"}},
	"aws.rds-snapshot":         {ARNField: "DBSnapshotArn", IDField: "DBSnapshotIdentifier", Services: []string{"rds"}},
	"aws.elasticache":          {ARNField: "ARN", IDField: "CacheClusterId", Services: []string{"elasticache"}},
	"aws.elasticache-cluster":  {ARNField: "ARN", IDField: "CacheClusterId", Services: []string{"elasticache"}},
	"aws.cache-cluster":        {ARNField: "ARN", IDField: "CacheClusterId", Services: []string{"elasticache"}},
	"aws.elasticache-snapshot": {ARNField: "ARN", Services: []string{"elasticache"}},
	"aws.timestream-database":  {ARNField: "Arn", NameField: "DatabaseName", Services: []string{"timestream"}},
	"aws.timestream-table":     {ARNField: "Arn", Services: []string{"timestream"}},

	// Networking
	"aws.vpc":               {ARNField: "VpcArn", IDField: "VpcId", IDPrefix: "vpc-", Services: []string{"ec2"}},
	"aws.subnet":            {ARNField: "SubnetArn", IDField: "SubnetId", IDPrefix: "subnet-", Services: []string{"ec2"}},
	"aws.security-group":    {ARNField: "GroupArn", IDField: "GroupId", IDPrefix: "sg-", Services: []string{"ec2"}},
	"aws.network-acl":       {ARNField: "NetworkAclArn", IDField: "NetworkAclId", IDPrefix: "acl-", Services: []string{"ec2"}},
	"aws.internet-gateway":  {ARNField: "InternetGatewayArn", IDField: "InternetGatewayId", IDPrefix: "igw-", Services: []string{"ec2"}},
	"aws.nat-gateway":       {ARNField: "NatGatewayArn", IDField: "NatGatewayId", IDPrefix: "nat-", Services: []string{"ec2"}},
	"aws.vpc-endpoint":      {ARNField: "VpcEndpointArn", IDField: "VpcEndpointId", IDPrefix: "vpce-", Services: []string{"ec2"}},
	"aws.network-interface": {ARNField: "NetworkInterfaceArn", IDField: "NetworkInterfaceId", IDPrefix: "eni-", Services: []string{"ec2"}},

	// Security & identity
	"aws.iam-user":              {ARNField: "Arn", NameField: "UserName", Services: []string{"iam"}},
	"aws.iam-role":              {ARNField: "Arn", NameField: "RoleName", Services: []string{"iam"}},
	"aws.iam-policy":            {ARNField: "Arn", NameField: "PolicyName", Services: []string{"iam"}},
	"aws.iam-group":             {ARNField: "Arn", NameField: "GroupName", Services: []string{"iam"}},
	"aws.kms":                   {ARNField: "Arn", IDField: "KeyId", NameField: "KeyId", Services: []string{"kms"}},
	"aws.kms-key":               {ARNField: "KeyArn", IDField: "KeyId", Services: []string{"kms"}},
	"aws.acm-certificate":       {ARNField: "CertificateArn", IDField: "CertificateArn", Services: []string{"acm"}},
	"aws.secretsmanager":        {ARNField: "ARN", NameField: "Name", Services: []string{"secretsmanager"}},
	"aws.secrets-manager":       {ARNField: "ARN", NameField: "Name", Services: []string{"secretsmanager"}},
	"aws.cognito-user-pool":     {ARNField: "Arn", NameField: "Name", Services: []string{"cognito-idp"}},
	"aws.cognito-identity-pool": {ARNField: "IdentityPoolArn", Services: []string{"cognito-identity"}},

	// Application integration
	"aws.sns":              {ARNField: "TopicArn", NameField: "TopicName", Services: []string{"sns"}},
	"aws.sqs":              {ARNField: "QueueArn", NameField: "QueueName", Services: []string{"sqs"}},
	"aws.events":           {ARNField: "Arn", Services: []string{"events"}},
	"aws.event-bus":        {ARNField: "Arn", NameField: "Name", Services: []string{"events"}},
	"aws.event-rule":       {ARNField: "Arn", NameField: "Name", Services: []string{"events"}},
	"aws.kinesis":          {ARNField: "StreamARN", NameField: "StreamName", Services: []string{"kinesis"}},
	"aws.kinesis-firehose": {ARNField: "DeliveryStreamARN", NameField: "DeliveryStreamName", Services: []string{"firehose"}},

	// Analytics & search
	"aws.elasticsearch": {ARNField: "ARN", NameField: "DomainName", Services: []string{"es", "elasticsearch"}},
	"aws.opensearch":    {ARNField: "ARN", NameField: "DomainName", Services: []string{"es", "opensearch"}},
	"aws.glue-database": {ARNField: "DatabaseArn", Services: []string{"glue"}},
	"aws.glue-table":    {ARNField: "TableArn", Services: []string{"glue"}},

	// Developer tools
	"aws.codecommit":   {ARNField: "Arn", NameField: "repositoryName", Services: []string{"codecommit"}},
	"aws.codebuild":    {ARNField: "Arn", Services: []string{"codebuild"}},
	"aws.codepipeline": {ARNField: "Arn", Services: []string{"codepipeline"}},

	// Containers & registry
	"aws.ecr":            {ARNField: "repositoryArn", NameField: "repositoryName", Services: []string{"ecr"}},
	"aws.ecr-repository": {ARNField: "repositoryArn", NameField: "repositoryName", Services: []string{"ecr"}},

	// CDN & edge
	"aws.cloudfront":              {ARNField: "ARN", IDField: "Id", Services: []string{"cloudfront"}},
	"aws.cloudfront-distribution": {ARNField: "ARN", IDField: "Id", Services: []string{"cloudfront"}},
	"aws.distribution":            {ARNField: "ARN", IDField: "Id", Services: []string{"cloudfront"}},

	// Security services
	"aws.waf":                           {ARNField: "ARN", Services: []string{"waf"}},
	"aws.waf-regional":                  {ARNField: "ARN", Services: []string{"waf-regional"}},
	"aws.wafv2":                         {ARNField: "ARN", Services: []string{"wafv2"}},
	"aws.shield-protection":             {ARNField: "ProtectionArn", Services: []string{"shield"}},
	"aws.guardduty-detector":            {ARNField: "DetectorArn", Services: []string{"guardduty"}},
	"aws.inspector-assessment-template": {ARNField: "Arn", Services: []string{"inspector"}},
	"aws.securityhub-hub":               {ARNField: "HubArn", Services: []string{"securityhub"}},
	"aws.config-rule":                   {ARNField: "ConfigRuleArn", NameField: "ConfigRuleName", Services: []string{"config"}},

	// Monitoring & logging
	"aws.cloudwatch-alarm":     {ARNField: "AlarmArn", IDField: "AlarmName", NameField: "AlarmName", Services: []string{"cloudwatch"}},
	"aws.cloudwatch-log-group": {ARNField: "arn", IDField: "logGroupName", NameField: "logGroupName", Services: []string{"logs"}},
	"aws.ses-identity":         {ARNField: "IdentityArn", NameField: "Identity", Services: []string{"ses"}},
}

// fieldsFor returns the field spec for a resource type. Unmapped types get
// an empty spec; the builder's fallback branch handles them.
func fieldsFor(resourceType string) (fieldSpec, bool) {
	spec, ok := resourceTypes[resourceType]
	return spec, ok
}

// arnService extracts the service component of an ARN
// (arn:<partition>:<service>:...), or "" for non-ARN values.
func arnService(arn string) string {
	parts := strings.SplitN(arn, ":", 4)
	if len(parts) < 4 || parts[0] != "arn" {
		return ""
	}
	return parts[2]
}

// ARNMatchesType reports whether an ARN's service component is compatible
// with a resource type. Unmapped types match conservatively, mirroring the
// engine's own permissive handling of unknown resources.
func ARNMatchesType(arn, resourceType string) bool {
	spec, ok := fieldsFor(resourceType)
	if !ok || len(spec.Services) == 0 {
		return true
	}
	service := strings.ToLower(arnService(arn))
	if service == "" {
		return false
	}
	for _, s := range spec.Services {
		if service == s {
			return true
		}
	}
	return false
}
