package credentials

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAWSCredential(sessionToken string) *AWSCredential {
	return &AWSCredential{
		cfg: aws.Config{
			Credentials: awscreds.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", sessionToken),
		},
		region: "us-west-2",
		now:    func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) },
	}
}

func signedRequest(t *testing.T, cred *AWSCredential, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost,
		"https://bedrock-runtime.us-west-2.amazonaws.com/model/anthropic.claude-3-5-haiku-20241022-v1:0/invoke",
		bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	require.NoError(t, cred.Apply(context.Background(), req))
	return req
}

func TestSignSetsSigV4Headers(t *testing.T) {
	req := signedRequest(t, testAWSCredential(""), `{"max_tokens":60}`)

	assert.Equal(t, "20260825T120000Z", req.Header.Get("X-Amz-Date"))
	assert.NotEmpty(t, req.Header.Get("X-Amz-Content-Sha256"))
	assert.Empty(t, req.Header.Get("X-Amz-Security-Token"))

	auth := req.Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260825/us-west-2/bedrock/aws4_request"))
	assert.Contains(t, auth, "SignedHeaders=content-type;host;x-amz-content-sha256;x-amz-date")
	assert.Contains(t, auth, "Signature=")
}

func TestSignIsDeterministic(t *testing.T) {
	first := signedRequest(t, testAWSCredential(""), `{"max_tokens":60}`)
	second := signedRequest(t, testAWSCredential(""), `{"max_tokens":60}`)
	assert.Equal(t, first.Header.Get("Authorization"), second.Header.Get("Authorization"))

	changed := signedRequest(t, testAWSCredential(""), `{"max_tokens":100}`)
	assert.NotEqual(t, first.Header.Get("Authorization"), changed.Header.Get("Authorization"))
}

func TestSignRestoresBody(t *testing.T) {
	req := signedRequest(t, testAWSCredential(""), `{"max_tokens":60}`)
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_tokens":60}`, string(body))
}

func TestSignIncludesSessionToken(t *testing.T) {
	req := signedRequest(t, testAWSCredential("session-token"), "{}")
	assert.Equal(t, "session-token", req.Header.Get("X-Amz-Security-Token"))
	assert.Contains(t, req.Header.Get("Authorization"), "x-amz-security-token")
}

func TestCanonicalPathEncodesModelIDs(t *testing.T) {
	assert.Equal(t,
		"/model/anthropic.claude-3-5-haiku-20241022-v1%3A0/invoke",
		canonicalPath("/model/anthropic.claude-3-5-haiku-20241022-v1:0/invoke"))
	assert.Equal(t, "/", canonicalPath(""))
}

func TestResolveReportsBrokenChain(t *testing.T) {
	cred := testAWSCredential("")
	require.NoError(t, cred.Resolve(context.Background()))

	cred.cfg.Credentials = aws.AnonymousCredentials{}
	assert.Error(t, cred.Resolve(context.Background()))
}
