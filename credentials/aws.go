package credentials

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	defaultAWSRegion = "us-west-2"
	signingService   = "bedrock"
	sigV4Algorithm   = "AWS4-HMAC-SHA256"
)

// AWSCredential signs requests for the Bedrock runtime with SigV4.
type AWSCredential struct {
	cfg    aws.Config
	region string

	// now is swapped in tests to pin the signing timestamp.
	now func() time.Time
}

// AWSOption configures an AWSCredential.
type AWSOption func(*awsOptions)

type awsOptions struct {
	roleARN string
}

// WithAssumedRole makes the credential assume roleARN via STS before
// signing. Used when the worker runs outside the account that owns
// Bedrock access.
func WithAssumedRole(roleARN string) AWSOption {
	return func(o *awsOptions) { o.roleARN = roleARN }
}

// NewAWSCredential resolves the default credential chain (environment,
// instance profile, IRSA) for region.
func NewAWSCredential(ctx context.Context, region string, opts ...AWSOption) (*AWSCredential, error) {
	if region == "" {
		region = defaultAWSRegion
	}
	var options awsOptions
	for _, opt := range opts {
		opt(&options)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if options.roleARN != "" {
		cfg.Credentials = stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), options.roleARN)
	}

	return &AWSCredential{cfg: cfg, region: region, now: time.Now}, nil
}

// Apply signs the request with SigV4 for the Bedrock service.
func (c *AWSCredential) Apply(ctx context.Context, req *http.Request) error {
	creds, err := c.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	return c.sign(req, creds)
}

// Type returns "aws".
func (c *AWSCredential) Type() string { return "aws" }

// Region returns the region the credential signs for.
func (c *AWSCredential) Region() string { return c.region }

// Resolve checks that the credential chain yields usable credentials.
// Bedrock has no cheap liveness endpoint, and an unresolved chain is
// the common misconfiguration.
func (c *AWSCredential) Resolve(ctx context.Context) error {
	if _, err := c.cfg.Credentials.Retrieve(ctx); err != nil {
		return fmt.Errorf("aws credentials unresolved: %w", err)
	}
	return nil
}

func (c *AWSCredential) sign(req *http.Request, creds aws.Credentials) error {
	t := c.now().UTC()
	amzDate := t.Format("20060102T150405Z")
	scope := fmt.Sprintf("%s/%s/%s/aws4_request", t.Format("20060102"), c.region, signingService)

	bodyHash, err := payloadHash(req)
	if err != nil {
		return err
	}

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", bodyHash)
	if creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	signed, canonical := canonicalHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalPath(req.URL.Path),
		req.URL.RawQuery,
		canonical,
		strings.Join(signed, ";"),
		bodyHash,
	}, "\n")

	stringToSign := strings.Join([]string{
		sigV4Algorithm,
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	key := hmacChain([]byte("AWS4"+creds.SecretAccessKey),
		t.Format("20060102"), c.region, signingService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, creds.AccessKeyID, scope, strings.Join(signed, ";"), signature))
	return nil
}

// payloadHash hashes the body, restoring it for the transport. A nil
// body hashes as empty.
func payloadHash(req *http.Request) (string, error) {
	if req.Body == nil {
		return sha256Hex(nil), nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return "", fmt.Errorf("read request body: %w", err)
	}
	req.Body = io.NopCloser(strings.NewReader(string(body)))
	return sha256Hex(body), nil
}

// canonicalHeaders returns the sorted signed-header names and the
// canonical header block. Authorization and User-Agent are excluded;
// Host is always included.
func canonicalHeaders(req *http.Request) (names []string, block string) {
	for name := range req.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" || lower == "user-agent" {
			continue
		}
		names = append(names, lower)
	}
	names = append(names, "host")
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if name == "host" {
			fmt.Fprintf(&b, "host:%s\n", req.Host)
			continue
		}
		values := req.Header.Values(http.CanonicalHeaderKey(name))
		fmt.Fprintf(&b, "%s:%s\n", name, strings.Join(values, ","))
	}
	return names, b.String()
}

// canonicalPath percent-encodes each path segment. Bedrock model IDs
// carry ':' (e.g. "v1:0") which must be encoded, so the raw path can't
// be used as-is.
func canonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = uriEncode(seg)
	}
	return strings.Join(segments, "/")
}

// uriEncode percent-encodes everything but RFC 3986 unreserved bytes.
func uriEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// hmacChain folds each part into the running HMAC key, per the SigV4
// key-derivation steps.
func hmacChain(key []byte, parts ...string) []byte {
	for _, part := range parts {
		key = hmacSHA256(key, part)
	}
	return key
}
