package credentials

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultAWSRegion is used when no region is configured.
const DefaultAWSRegion = "us-west-2"

const bedrockSigningService = "bedrock"

// BedrockModelMapping maps Claude model names to Bedrock model IDs.
var BedrockModelMapping = map[string]string{
	"claude-3-5-sonnet-20241022": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-sonnet-20240620": "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"claude-3-5-haiku-20241022":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-haiku-20240307":    "anthropic.claude-3-haiku-20240307-v1:0",
	"claude-3-7-sonnet-20250219": "anthropic.claude-3-7-sonnet-20250219-v1:0",
}

// BedrockModelID returns the Bedrock ID for a Claude model name. Names that are
// already Bedrock IDs, or unknown, are returned unchanged.
func BedrockModelID(model string) string {
	if id, ok := BedrockModelMapping[model]; ok {
		return id
	}
	return model
}

// BedrockEndpoint returns the Bedrock runtime endpoint URL for a region.
func BedrockEndpoint(region string) string {
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
}

// AWSCredential signs requests with AWS SigV4 for Bedrock.
type AWSCredential struct {
	provider aws.CredentialsProvider
	region   string
	signer   *v4.Signer
	now      func() time.Time
}

// NewAWSCredential loads the default AWS credential chain (environment, shared
// config, instance or task role). A non-empty roleARN is assumed through STS.
func NewAWSCredential(ctx context.Context, region, roleARN string) (*AWSCredential, error) {
	if region == "" {
		region = DefaultAWSRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	provider := cfg.Credentials
	if roleARN != "" {
		provider = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), roleARN))
	}
	return NewAWSCredentialFromProvider(provider, region), nil
}

// NewAWSCredentialFromProvider signs with credentials from provider.
func NewAWSCredentialFromProvider(provider aws.CredentialsProvider, region string) *AWSCredential {
	if region == "" {
		region = DefaultAWSRegion
	}
	return &AWSCredential{
		provider: provider,
		region:   region,
		signer:   v4.NewSigner(),
		now:      time.Now,
	}
}

// Apply signs the request using AWS SigV4. The body is read to hash it and then
// restored.
func (c *AWSCredential) Apply(ctx context.Context, req *http.Request) error {
	creds, err := c.provider.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body for signing: %w", err)
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	sum := sha256.Sum256(body)

	return c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), bedrockSigningService, c.region, c.now())
}

// Type returns TypeAWS.
func (c *AWSCredential) Type() string {
	return TypeAWS
}

// Region returns the configured AWS region.
func (c *AWSCredential) Region() string {
	return c.region
}
