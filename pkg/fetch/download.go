package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// maxTextDocument bounds in-memory downloads of checksum files, signatures
// and certificates. Release archives stream to disk and are not bounded.
const maxTextDocument = 1 << 20

// download streams url into dest.
func (p *Pipeline) download(ctx context.Context, url, dest string) error {
	resp, err := p.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	return f.Close()
}

// downloadString fetches a small text document (checksum file, armored
// signature or certificate) into memory.
func (p *Pipeline) downloadString(ctx context.Context, url string) (string, error) {
	resp, err := p.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTextDocument))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

func (p *Pipeline) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	return resp, nil
}

// verifyChecksum compares the SHA-256 of the file at path against the
// published hex digest. This is an integrity check on the transfer, not an
// authenticity check; the signature verification is separate.
func verifyChecksum(path, wantHex string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, wantHex) {
		return fmt.Errorf("%w: checksum mismatch for %s: got %s, published %s",
			resource.ErrVerificationFailed, path, got, strings.ToLower(wantHex))
	}
	return nil
}
