// Package secrets supplies the upstream OAuth client credentials.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog/log"
)

// ErrIncomplete is returned when a source is reachable but lacks a field.
var ErrIncomplete = errors.New("oauth secrets incomplete")

// OAuthSecrets mirrors the JSON document stored in the secret manager.
type OAuthSecrets struct {
	ClientID     string `json:"STRAVA_CLIENT_ID"`
	ClientSecret string `json:"STRAVA_CLIENT_SECRET"`
	RedirectURI  string `json:"REDIRECT_URI"`
}

func (s *OAuthSecrets) validate() error {
	var missing []string
	if s.ClientID == "" {
		missing = append(missing, "STRAVA_CLIENT_ID")
	}
	if s.ClientSecret == "" {
		missing = append(missing, "STRAVA_CLIENT_SECRET")
	}
	if s.RedirectURI == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// Provider resolves OAuth secrets.
type Provider interface {
	Get(ctx context.Context) (*OAuthSecrets, error)
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	Getenv func(string) string
}

func (p EnvProvider) Get(context.Context) (*OAuthSecrets, error) {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	s := &OAuthSecrets{
		ClientID:     getenv("STRAVA_CLIENT_ID"),
		ClientSecret: getenv("STRAVA_CLIENT_SECRET"),
		RedirectURI:  getenv("REDIRECT_URI"),
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// SecretValueAPI is the slice of the Secrets Manager client used here.
type SecretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads a JSON secret document from AWS Secrets Manager.
type AWSProvider struct {
	client   SecretValueAPI
	secretID string
}

func NewAWSProvider(client SecretValueAPI, secretID string) *AWSProvider {
	return &AWSProvider{client: client, secretID: secretID}
}

// NewAWSProviderFromConfig loads the default AWS credential chain.
func NewAWSProviderFromConfig(ctx context.Context, region, secretID string) (*AWSProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewAWSProvider(secretsmanager.NewFromConfig(cfg), secretID), nil
}

func (p *AWSProvider) Get(ctx context.Context) (*OAuthSecrets, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", p.secretID, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", p.secretID)
	}

	var s OAuthSecrets
	if err := json.Unmarshal([]byte(*out.SecretString), &s); err != nil {
		return nil, fmt.Errorf("decode secret %s: %w", p.secretID, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Cached memoizes the first successful lookup for the process lifetime.
// Failures are not cached so a later request can retry.
type Cached struct {
	inner Provider
	mu    sync.Mutex
	value *OAuthSecrets
}

func NewCached(inner Provider) *Cached {
	return &Cached{inner: inner}
}

func (c *Cached) Get(ctx context.Context) (*OAuthSecrets, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value != nil {
		return c.value, nil
	}
	v, err := c.inner.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch oauth secrets")
		return nil, err
	}
	c.value = v
	return v, nil
}
