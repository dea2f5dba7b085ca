// Package credentials authenticates outbound calls to hosted LLM
// backends: API keys for Azure OpenAI key auth, SigV4 signing for
// Bedrock, and Azure AD tokens for keyless Azure deployments.
package credentials

import (
	"context"
	"net/http"
)

// Credential applies authentication to an outbound HTTP request.
type Credential interface {
	Apply(ctx context.Context, req *http.Request) error

	// Type identifies the scheme ("api_key", "aws", "azure").
	Type() string
}

// APIKeyCredential sets a static key on a request header.
type APIKeyCredential struct {
	key    string
	header string
	prefix string
}

// APIKeyOption configures an APIKeyCredential.
type APIKeyOption func(*APIKeyCredential)

// WithHeaderName overrides the header the key is written to.
func WithHeaderName(name string) APIKeyOption {
	return func(c *APIKeyCredential) { c.header = name }
}

// WithPrefix overrides the value prefix. The default is "Bearer ";
// pass "" for providers that take the bare key.
func WithPrefix(prefix string) APIKeyOption {
	return func(c *APIKeyCredential) { c.prefix = prefix }
}

// NewAPIKeyCredential returns a credential that writes
// "Authorization: Bearer <key>" unless options say otherwise.
func NewAPIKeyCredential(key string, opts ...APIKeyOption) *APIKeyCredential {
	c := &APIKeyCredential{key: key, header: "Authorization", prefix: "Bearer "}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply sets the key header. An empty key is a no-op so callers can
// pass through unconfigured credentials without branching.
func (c *APIKeyCredential) Apply(_ context.Context, req *http.Request) error {
	if c.key != "" {
		req.Header.Set(c.header, c.prefix+c.key)
	}
	return nil
}

// Type returns "api_key".
func (c *APIKeyCredential) Type() string { return "api_key" }
