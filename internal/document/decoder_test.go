package document

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/model"
)

func TestUnpad(t *testing.T) {
	t.Parallel()

	plain := []byte("twelve bytes")
	padded := append(append([]byte{}, plain...), 0x04, 0x04, 0x04, 0x04)
	require.Len(t, padded, 16)
	require.Equal(t, plain, Unpad(padded))

	zeroTail := append([]byte("fifteen bytes!!"), 0x00)
	require.Equal(t, zeroTail, Unpad(zeroTail))

	big := append([]byte("fifteen bytes!!"), 0x20)
	require.Equal(t, big, Unpad(big))

	full := bytes.Repeat([]byte{0x10}, 16)
	require.Empty(t, Unpad(full))

	require.Empty(t, Unpad(nil))
}

func TestDetectDelimiter(t *testing.T) {
	t.Parallel()

	cases := map[string]rune{
		"a,b,c\n1,2,3":         ',',
		"a;b;c\n1;2;3":         ';',
		"a\tb\tc\n1\t2\t3":     '\t',
		"a|b|c\n1|2|3":         '|',
		"\n\nx;y,z;w\n":        ';',
		"single-column\nvalue": '\t',
		"":                     '\t',
	}
	for in, want := range cases {
		if got := DetectDelimiter(in); got != want {
			t.Fatalf("DetectDelimiter(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a;b", firstLine("\n  \na;b\nc,d,e,f"))
	require.Equal(t, "only", firstLine("only"))
	require.Empty(t, firstLine("\n \n"))

	big := "sku,qty\n" + strings.Repeat("x;y;z;w\n", 10000)
	require.Equal(t, ',', DetectDelimiter(big))
}

func TestParseDelimited(t *testing.T) {
	t.Parallel()

	rows, skipped := ParseDelimited("a,b,c\n1,2,3")
	require.Zero(t, skipped)
	require.Equal(t, []model.RawRow{{"a": "1", "b": "2", "c": "3"}}, rows)

	rows, _ = ParseDelimited(" sku \t qty \tnote\n ABC \t 5 \n\nDEF\t\tx\n")
	require.Equal(t, []model.RawRow{
		{"sku": "ABC", "qty": "5", "note": ""},
		{"sku": "DEF", "qty": "", "note": "x"},
	}, rows)

	rows, _ = ParseDelimited("")
	require.Empty(t, rows)
}

func TestDecodeText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "sku,qty", DecodeText(append([]byte{0xEF, 0xBB, 0xBF}, []byte("sku,qty")...)))
	// "Rücksendung" in Windows-1252
	require.Equal(t, "Rücksendung", DecodeText([]byte{'R', 0xFC, 'c', 'k', 's', 'e', 'n', 'd', 'u', 'n', 'g'}))
}

func encryptCBC(t *testing.T, key, iv, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	n := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func gz(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, status int, payload []byte) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("pre-signed download must not carry auth")
		}
		w.WriteHeader(status)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/doc?X-Amz-Signature=abc"
}

func TestDecoder_Decode_EncryptedGzip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	iv := bytes.Repeat([]byte{9}, 16)
	doc := []byte("sku\tasin\tquantity\nSKU-1\tB000\t3\n")
	url := serve(t, http.StatusOK, encryptCBC(t, key, iv, gz(t, doc)))

	d := NewDecoder(nil, time.Second, zaptest.NewLogger(t))
	rows, err := d.Decode(context.Background(), model.DocumentRef{
		DocumentID:           "D1",
		URL:                  url,
		EncryptionKey:        base64.StdEncoding.EncodeToString(key),
		EncryptionIV:         base64.StdEncoding.EncodeToString(iv),
		CompressionAlgorithm: "GZIP",
	})
	require.NoError(t, err)
	require.Equal(t, []model.RawRow{{"sku": "SKU-1", "asin": "B000", "quantity": "3"}}, rows)
}

func TestDecoder_Decode_BadGzipFallsBackToRaw(t *testing.T) {
	url := serve(t, http.StatusOK, []byte("a;b\n1;2\n"))

	d := NewDecoder(nil, time.Second, zaptest.NewLogger(t))
	rows, err := d.Decode(context.Background(), model.DocumentRef{URL: url, CompressionAlgorithm: "GZIP"})
	require.NoError(t, err)
	require.Equal(t, []model.RawRow{{"a": "1", "b": "2"}}, rows)
}

func TestDecoder_Decode_BadCiphertext(t *testing.T) {
	url := serve(t, http.StatusOK, []byte("not a block multiple"))

	d := NewDecoder(nil, time.Second, nil)
	_, err := d.Decode(context.Background(), model.DocumentRef{
		URL:           url,
		EncryptionKey: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32)),
		EncryptionIV:  base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{2}, 16)),
	})
	require.Error(t, err)
}

func TestDecoder_Decode_HTTPError(t *testing.T) {
	url := serve(t, http.StatusForbidden, []byte("<Error>AccessDenied</Error>"))

	d := NewDecoder(nil, time.Second, nil)
	_, err := d.Decode(context.Background(), model.DocumentRef{URL: url})
	var ae *errs.RemoteAPIError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, http.StatusForbidden, ae.StatusCode)
	require.NotContains(t, ae.Endpoint, "X-Amz-Signature")
}

func TestDecoder_Decode_MissingURL(t *testing.T) {
	d := NewDecoder(nil, time.Second, nil)
	_, err := d.Decode(context.Background(), model.DocumentRef{})
	require.ErrorIs(t, err, errs.ErrNoDocument)
}
