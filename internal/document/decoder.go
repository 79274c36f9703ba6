// Package document materializes report documents: download, decrypt,
// decompress and parse delimited text into rows.
package document

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/model"
)

const maxDocumentBytes = 512 << 20

// Decoder turns a DocumentRef into parsed rows.
type Decoder struct {
	client  *http.Client
	timeout time.Duration
	retries uint64
	log     *zap.Logger
}

// NewDecoder returns a decoder downloading with the given per-download timeout.
func NewDecoder(client *http.Client, timeout time.Duration, log *zap.Logger) *Decoder {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{client: client, timeout: timeout, retries: 2, log: log}
}

// Decode downloads and parses the document. Transport and decryption
// failures are returned; compression and format anomalies degrade to
// best-effort output.
func (d *Decoder) Decode(ctx context.Context, ref model.DocumentRef) ([]model.RawRow, error) {
	blob, err := d.download(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	if ref.Encrypted() {
		if blob, err = decryptCBC(ref.EncryptionKey, ref.EncryptionIV, blob); err != nil {
			return nil, fmt.Errorf("document %s: %w", ref.DocumentID, err)
		}
	}
	if strings.EqualFold(ref.CompressionAlgorithm, "GZIP") {
		if plain, err := gunzip(blob); err != nil {
			d.log.Warn("document not gzip despite compression flag, using raw bytes",
				zap.String("document", ref.DocumentID), zap.Error(err))
		} else {
			blob = plain
		}
	}
	rows, skipped := ParseDelimited(DecodeText(blob))
	if skipped > 0 {
		d.log.Warn("skipped malformed records", zap.String("document", ref.DocumentID), zap.Int("skipped", skipped))
	}
	return rows, nil
}

func (d *Decoder) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errs.ErrNoDocument
	}
	var out []byte
	b := retry.WithMaxRetries(d.retries, retry.NewExponential(time.Second))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		blob, err := d.get(ctx, url)
		if err != nil {
			var ae *errs.RemoteAPIError
			if errors.As(err, &ae) && ae.Retryable() {
				return retry.RetryableError(err)
			}
			return err
		}
		out = blob
		return nil
	})
	return out, err
}

// get fetches a pre-signed URL; no auth headers are added.
func (d *Decoder) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &errs.RemoteAPIError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			Endpoint:   redact(url),
			Detail:     strings.TrimSpace(string(snippet)),
		}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
}

// redact drops the query string, which carries the pre-signed credentials.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

func decryptCBC(keyB64, ivB64 string, data []byte) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv length %d, want %d", len(iv), block.BlockSize())
	}
	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return Unpad(out), nil
}

// Unpad strips PKCS#7 padding leniently: a trailing byte n in [1,16]
// removes n bytes; any other value leaves the data untouched. The pad
// bytes themselves are not verified.
func Unpad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n < 1 || n > aes.BlockSize || n > len(b) {
		return b
	}
	return b[:len(b)-n]
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxDocumentBytes))
}
