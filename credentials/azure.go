package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// cognitiveServicesScope is the token audience for Azure OpenAI.
const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// tokenRefreshBuffer forces a refresh this long before expiry so a
// request never goes out with a token about to lapse mid-flight.
const tokenRefreshBuffer = 5 * time.Minute

// AzureCredential authenticates with Azure AD tokens, for deployments
// where key auth is disabled. Tokens are cached until near expiry.
type AzureCredential struct {
	endpoint string
	cred     azcore.TokenCredential

	mu     sync.RWMutex
	cached *azcore.AccessToken
}

// NewAzureCredential builds a credential from the default Azure chain
// (managed identity, workload identity, az CLI, environment).
func NewAzureCredential(_ context.Context, endpoint string) (*AzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential chain: %w", err)
	}
	return &AzureCredential{endpoint: endpoint, cred: cred}, nil
}

// Apply sets a bearer token for the Cognitive Services scope.
func (c *AzureCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("azure token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Type returns "azure".
func (c *AzureCredential) Type() string { return "azure" }

// Endpoint returns the Azure OpenAI endpoint this credential serves.
func (c *AzureCredential) Endpoint() string { return c.endpoint }

func (c *AzureCredential) token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if tok := c.cached; tok != nil && time.Until(tok.ExpiresOn) > tokenRefreshBuffer {
		c.mu.RUnlock()
		return tok.Token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok := c.cached; tok != nil && time.Until(tok.ExpiresOn) > tokenRefreshBuffer {
		return tok.Token, nil
	}

	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{cognitiveServicesScope},
	})
	if err != nil {
		return "", err
	}
	c.cached = &token
	return token.Token, nil
}
