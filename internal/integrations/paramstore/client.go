// Package paramstore reads bot secrets from AWS Systems Manager Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the subset of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is satisfied by *Client; the gateway client depends on it.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ErrNotFound is returned when the parameter does not exist.
var ErrNotFound = errors.New("paramstore: parameter not found")

// Client reads SecureString parameters, optionally under a common prefix.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client. prefix may be empty; it is joined with keys passed to
// Lookup and Path.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, prefix: strings.TrimRight(strings.TrimSpace(prefix), "/")}, nil
}

// Path returns the full parameter name for key.
func (c *Client) Path(key string) string {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if c.prefix == "" {
		return "/" + key
	}
	return c.prefix + "/" + key
}

// Lookup reads the parameter stored at Path(key).
func (c *Client) Lookup(ctx context.Context, key string) (string, error) {
	if strings.Trim(strings.TrimSpace(key), "/") == "" {
		return "", errors.New("paramstore: key is required")
	}
	return c.GetParameter(ctx, c.Path(key))
}

// GetParameter reads a parameter by its full name, decrypted.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}
