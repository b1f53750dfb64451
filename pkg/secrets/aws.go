package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSProvider serves secrets from AWS Secrets Manager.
type AWSProvider struct {
	client *secretsmanager.Client
	prefix string
}

// NewAWSProvider creates a Secrets Manager provider. Supported config keys:
// region, prefix, access_key, secret_key, endpoint.
func NewAWSProvider(ctx context.Context, cfg map[string]string) (*AWSProvider, error) {
	region := cfg["region"]
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))

	if accessKey := cfg["access_key"]; accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, cfg["secret_key"], ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if endpoint := cfg["endpoint"]; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &AWSProvider{client: client, prefix: cfg["prefix"]}, nil
}

func (p *AWSProvider) Name() string {
	return "aws"
}

func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.prefix + key),
	})
	if err != nil {
		return "", ErrSecretNotFound
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value", key)
	}
	return *out.SecretString, nil
}

func (p *AWSProvider) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	results := make(map[string]string)
	for _, key := range keys {
		value, err := p.Get(ctx, key)
		if err != nil {
			continue
		}
		results[key] = value
	}
	return results, nil
}

func (p *AWSProvider) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := secretsmanager.NewListSecretsPaginator(p.client, &secretsmanager.ListSecretsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets: %w", err)
		}
		for _, entry := range page.SecretList {
			if entry.Name == nil {
				continue
			}
			key := strings.TrimPrefix(*entry.Name, p.prefix)
			if prefix == "" || strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func (p *AWSProvider) Set(ctx context.Context, key, value string) error {
	name := p.prefix + key
	_, err := p.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	_, err = p.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	})
	if err != nil {
		return fmt.Errorf("failed to store secret %q: %w", key, err)
	}
	return nil
}

func (p *AWSProvider) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId: aws.String(p.prefix + key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete secret %q: %w", key, err)
	}
	return nil
}
