package credentials

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenSource struct {
	token   string
	expires time.Time
	calls   int
}

func (f *fakeTokenSource) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.calls++
	return azcore.AccessToken{Token: f.token, ExpiresOn: f.expires}, nil
}

func TestAzureCredentialSetsBearerToken(t *testing.T) {
	source := &fakeTokenSource{token: "tok-1", expires: time.Now().Add(time.Hour)}
	cred := &AzureCredential{endpoint: "https://example.openai.azure.com", cred: source}

	req, err := http.NewRequest(http.MethodPost, cred.Endpoint(), nil)
	require.NoError(t, err)
	require.NoError(t, cred.Apply(context.Background(), req))

	assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
	assert.Equal(t, "azure", cred.Type())
}

func TestAzureCredentialCachesToken(t *testing.T) {
	source := &fakeTokenSource{token: "tok-1", expires: time.Now().Add(time.Hour)}
	cred := &AzureCredential{cred: source}

	for range 3 {
		req, err := http.NewRequest(http.MethodGet, "https://example.openai.azure.com", nil)
		require.NoError(t, err)
		require.NoError(t, cred.Apply(context.Background(), req))
	}
	assert.Equal(t, 1, source.calls)
}

func TestAzureCredentialRefreshesNearExpiry(t *testing.T) {
	source := &fakeTokenSource{token: "tok-1", expires: time.Now().Add(time.Minute)}
	cred := &AzureCredential{cred: source}

	req, err := http.NewRequest(http.MethodGet, "https://example.openai.azure.com", nil)
	require.NoError(t, err)
	require.NoError(t, cred.Apply(context.Background(), req))
	require.NoError(t, cred.Apply(context.Background(), req))

	assert.Equal(t, 2, source.calls)
}
