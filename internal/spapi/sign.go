package spapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

const signingService = "execute-api"

// Signer adds a request signature to an outbound request.
type Signer interface {
	Sign(ctx context.Context, req *http.Request, body []byte) error
}

// SigV4 signs requests with static execution-role credentials.
type SigV4 struct {
	creds  aws.Credentials
	region string
	signer *v4.Signer
	now    func() time.Time
}

// NewSigV4 returns a signer for the given keys and signing region.
func NewSigV4(accessKey, secretKey, region string) *SigV4 {
	return &SigV4{
		creds:  aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey, Source: "fba-recon"},
		region: region,
		signer: v4.NewSigner(),
		now:    time.Now,
	}
}

// Sign computes a fresh signature over method, canonical URI, headers and body digest.
func (s *SigV4) Sign(ctx context.Context, req *http.Request, body []byte) error {
	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	return s.signer.SignHTTP(ctx, s.creds, req, payloadHash, signingService, s.region, s.now())
}
