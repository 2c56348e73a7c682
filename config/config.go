// Package config loads ledgerd settings from a YAML file, LEDGER_* environment
// variables and, optionally, AWS SSM Parameter Store.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/viper"

	"github.com/helix-tools/ledger-go/ledger"
)

// DefaultRegion is the default AWS region.
const DefaultRegion = "us-east-1"

// DefaultSnapshotInterval bounds how much committed state a crash can lose.
const DefaultSnapshotInterval = 10 * time.Second

// EnvPrefix prefixes every environment variable, e.g. LEDGER_FEE_RATE.
const EnvPrefix = "LEDGER"

// Config holds the daemon settings. Operator and FeeRate are fixed for the
// lifetime of a ledger.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`

	Region             string `mapstructure:"region"`
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	SSMPrefix          string `mapstructure:"ssm_prefix"`

	Operator string `mapstructure:"operator"`
	FeeRate  uint64 `mapstructure:"fee_rate"`

	SnapshotBucket string `mapstructure:"snapshot_bucket"`
	SnapshotKey    string `mapstructure:"snapshot_key"`
	// SnapshotInterval is how often a changed ledger is checkpointed. Zero
	// saves only on shutdown.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	KMSKeyID       string `mapstructure:"kms_key_id"`
	EventQueueURL  string `mapstructure:"event_queue_url"`
}

var defaults = map[string]any{
	"http_addr":             ":8080",
	"metrics_addr":          ":9090",
	"log_level":             "info",
	"region":                DefaultRegion,
	"aws_access_key_id":     "",
	"aws_secret_access_key": "",
	"ssm_prefix":            "",
	"operator":              "",
	"fee_rate":              ledger.DefaultFeeRate,
	"snapshot_bucket":       "",
	"snapshot_key":          "ledger/state.json.gz",
	"snapshot_interval":     DefaultSnapshotInterval,
	"kms_key_id":            "",
	"event_queue_url":       "",
}

// Load reads configuration. path may be empty; environment variables
// override file values, which override defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the ledger cannot start without.
// An empty operator is allowed; the daemon substitutes the caller identity.
func (c Config) Validate() error {
	if c.FeeRate > ledger.MaxFeeRate {
		return fmt.Errorf("fee_rate %d exceeds %d per mille", c.FeeRate, ledger.MaxFeeRate)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot_interval must not be negative")
	}
	if c.KMSKeyID != "" && c.SnapshotBucket == "" {
		return fmt.Errorf("kms_key_id requires snapshot_bucket")
	}

	return nil
}

// SSMAPI is the subset of the SSM client used to load parameters.
type SSMAPI interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// ApplySSM overlays parameters stored under c.SSMPrefix, e.g.
// /ledger/production/operator, onto c. Parameter names map to config keys.
// Unknown names are ignored.
func (c *Config) ApplySSM(ctx context.Context, client SSMAPI) error {
	if c.SSMPrefix == "" {
		return nil
	}

	prefix := strings.TrimSuffix(c.SSMPrefix, "/") + "/"
	var nextToken *string
	for {
		out, err := client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			Recursive:      aws.Bool(false),
			WithDecryption: aws.Bool(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return fmt.Errorf("failed to get parameters from SSM: %w", err)
		}

		for _, p := range out.Parameters {
			key := strings.TrimPrefix(aws.ToString(p.Name), prefix)
			if err := c.set(key, aws.ToString(p.Value)); err != nil {
				return fmt.Errorf("invalid SSM parameter %s: %w", aws.ToString(p.Name), err)
			}
		}

		if out.NextToken == nil {
			return nil
		}
		nextToken = out.NextToken
	}
}

func (c *Config) set(key, value string) error {
	switch key {
	case "operator":
		c.Operator = value
	case "fee_rate":
		rate, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		c.FeeRate = rate
	case "snapshot_bucket":
		c.SnapshotBucket = value
	case "snapshot_key":
		c.SnapshotKey = value
	case "snapshot_interval":
		interval, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		c.SnapshotInterval = interval
	case "kms_key_id":
		c.KMSKeyID = value
	case "event_queue_url":
		c.EventQueueURL = value
	case "log_level":
		c.LogLevel = value
	}

	return nil
}

// NewAWSConfig loads the AWS config for c.Region. Static credentials are
// used when both keys are set, otherwise the default provider chain.
func NewAWSConfig(ctx context.Context, c Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AWSAccessKeyID,
			c.AWSSecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awsCfg, nil
}

// STSAPI is the subset of the STS client used to verify credentials.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// CallerIdentity verifies the configured credentials and returns the caller ARN.
func CallerIdentity(ctx context.Context, client STSAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("invalid AWS credentials: %w", err)
	}

	arn := aws.ToString(out.Arn)
	if arn == "" {
		return "", fmt.Errorf("STS returned no caller ARN")
	}

	return arn, nil
}
