package password

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsClient defines the AWS Secrets Manager surface used for aws-sm:
// password specs. This allows for mocking in tests.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Environment overrides for the AWS client. The dedicated names keep
// signing credentials separate from whatever ambient AWS identity the
// machine carries.
const (
	envAWSRegion          = "APKSIGNER_AWS_REGION"
	envAWSAccessKeyID     = "APKSIGNER_AWS_ACCESS_KEY_ID"
	envAWSSecretAccessKey = "APKSIGNER_AWS_SECRET_ACCESS_KEY"
	envAWSEndpoint        = "APKSIGNER_AWS_ENDPOINT"
)

func (r *Retriever) fetchAWSSecret(ctx context.Context, id string) (string, error) {
	if r.secrets == nil {
		client, err := defaultSecretsClient(ctx)
		if err != nil {
			return "", err
		}
		r.secrets = client
	}

	out, err := r.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("fetching AWS secret %s: %w", id, err)
	}
	switch {
	case out.SecretString != nil:
		return *out.SecretString, nil
	case len(out.SecretBinary) > 0:
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("AWS secret %s has no value", id)
}

func defaultSecretsClient(ctx context.Context) (SecretsClient, error) {
	var configOpts []func(*config.LoadOptions) error
	if region := os.Getenv(envAWSRegion); region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}
	if id, secret := os.Getenv(envAWSAccessKeyID), os.Getenv(envAWSSecretAccessKey); id != "" && secret != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if endpoint := os.Getenv(envAWSEndpoint); endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return secretsmanager.NewFromConfig(cfg, clientOpts...), nil
}
