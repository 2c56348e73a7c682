// Package api serves the ledger over HTTP and provides the typed client used
// by the producer and consumer SDKs.
//
// The server trusts the X-Caller-Identity header set by the identity layer in
// front of it. The client signs requests with AWS SigV4 when credentials are
// configured.
package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// DefaultRegion is the default AWS region.
const DefaultRegion = "us-east-1"

// Credentials holds the AWS credentials used to sign requests.
type Credentials struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

func (c Credentials) valid() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

// SSMAPI is the subset of the SSM client used to look up credentials.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadCredentialsFromSSM loads the signing credentials of identity from
// Parameter Store:
//   - {prefix}/clients/{identity}/aws_access_key_id
//   - {prefix}/clients/{identity}/aws_secret_access_key
func LoadCredentialsFromSSM(ctx context.Context, client SSMAPI, prefix, identity string) (Credentials, error) {
	base := fmt.Sprintf("%s/clients/%s", strings.TrimSuffix(prefix, "/"), identity)

	accessKey, err := getParameter(ctx, client, base+"/aws_access_key_id")
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to get access key from SSM: %w", err)
	}

	secretKey, err := getParameter(ctx, client, base+"/aws_secret_access_key")
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to get secret key from SSM: %w", err)
	}

	return Credentials{AWSAccessKeyID: accessKey, AWSSecretAccessKey: secretKey}, nil
}

func getParameter(ctx context.Context, client SSMAPI, name string) (string, error) {
	resp, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if resp.Parameter == nil || aws.ToString(resp.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s is empty", name)
	}

	return aws.ToString(resp.Parameter.Value), nil
}

// NewAWSConfig creates an AWS config with static credentials.
func NewAWSConfig(ctx context.Context, creds Credentials, region string) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AWSAccessKeyID,
			creds.AWSSecretAccessKey,
			"",
		)),
	)
}
