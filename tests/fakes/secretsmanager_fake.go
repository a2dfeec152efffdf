package fakes

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// FakeSecretsManagerClient is an in-memory stand-in for the AWS Secrets
// Manager client used by aws-sm: password specs.
type FakeSecretsManagerClient struct {
	// Secrets maps secret IDs to string values.
	Secrets map[string]string
	// Binary maps secret IDs to binary values, consulted when Secrets has
	// no entry.
	Binary map[string][]byte
	// Errors maps secret IDs to errors to return instead of a value.
	Errors map[string]error
	// GetSecretValueFunc overrides the default behavior entirely when set.
	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
	// Calls records every requested secret ID in order.
	Calls []string
}

// GetSecretValue implements the client interface.
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(params.SecretId)
	f.Calls = append(f.Calls, id)

	if f.GetSecretValueFunc != nil {
		return f.GetSecretValueFunc(ctx, params)
	}
	if err, ok := f.Errors[id]; ok {
		return nil, err
	}
	if value, ok := f.Secrets[id]; ok {
		return &secretsmanager.GetSecretValueOutput{
			SecretString: aws.String(value),
			Name:         params.SecretId,
		}, nil
	}
	if value, ok := f.Binary[id]; ok {
		return &secretsmanager.GetSecretValueOutput{
			SecretBinary: value,
			Name:         params.SecretId,
		}, nil
	}
	return nil, &types.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret.")}
}
