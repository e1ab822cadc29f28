package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncsteward/ncsteward/pkg/release"
	"github.com/ncsteward/ncsteward/pkg/resource"
)

// signer bundles a generated key with its exported public form.
type signer struct {
	entity      *openpgp.Entity
	fingerprint string
	armoredPub  string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	entity, err := openpgp.NewEntity("Release Signer", "", "releases@example.test", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	return &signer{
		entity:      entity,
		fingerprint: fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint),
		armoredPub:  buf.String(),
	}
}

func (s *signer) sign(t *testing.T, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), nil))
	return buf.String()
}

// artifactServer serves a signed release artifact triple plus keyserver and
// fallback certificate endpoints.
type artifactServer struct {
	*httptest.Server
	archive    []byte
	signature  string
	checksum   string // full checksum document body
	keyserver  bool   // serve the key over HKP
	fallback   string // armored key served at /fallback.asc, empty = 404
	armoredKey string
}

func newArtifactServer(t *testing.T, s *signer, archive []byte) *artifactServer {
	t.Helper()
	digest := sha256.Sum256(archive)
	as := &artifactServer{
		archive:    archive,
		signature:  s.sign(t, archive),
		checksum:   hex.EncodeToString(digest[:]) + "  nextcloud-1.0.0.tar.bz2\n",
		keyserver:  true,
		armoredKey: s.armoredPub,
	}
	as.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/nextcloud-1.0.0.tar.bz2":
			w.Write(as.archive)
		case r.URL.Path == "/nextcloud-1.0.0.tar.bz2.sha256":
			fmt.Fprint(w, as.checksum)
		case r.URL.Path == "/nextcloud-1.0.0.tar.bz2.asc":
			fmt.Fprint(w, as.signature)
		case strings.HasPrefix(r.URL.Path, "/pks/lookup"):
			if !as.keyserver {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, as.armoredKey)
		case r.URL.Path == "/fallback.asc":
			if as.fallback == "" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, as.fallback)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(as.Close)
	return as
}

func (as *artifactServer) artifact() release.Artifact {
	base := as.URL + "/nextcloud-1.0.0.tar.bz2"
	return release.Artifact{
		Version:      "1.0.0",
		ArchiveURL:   base,
		ChecksumURL:  base + ".sha256",
		SignatureURL: base + ".asc",
	}
}

func (as *artifactServer) anchor(fingerprints ...string) TrustAnchor {
	return TrustAnchor{
		Fingerprints:    fingerprints,
		Keyserver:       as.URL,
		FallbackCertURL: as.URL + "/fallback.asc",
	}
}

// scratchEntries counts scratch directories left under base.
func scratchEntries(t *testing.T, base string) int {
	t.Helper()
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	return len(entries)
}

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	base := t.TempDir()
	return New(base, 10*time.Second, nil), base
}

func TestAcquireHappyPath(t *testing.T) {
	s := newSigner(t)
	as := newArtifactServer(t, s, []byte("release archive bytes"))
	p, base := newTestPipeline(t)

	verified, err := p.Acquire(context.Background(), as.artifact(), as.anchor(s.fingerprint))
	require.NoError(t, err)

	data, err := os.ReadFile(verified.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("release archive bytes"), data)

	require.NoError(t, verified.Close())
	assert.NoFileExists(t, verified.Path)
	assert.Equal(t, 0, scratchEntries(t, base), "scratch must be purged after Close")
}

func TestAcquireFallbackCertificate(t *testing.T) {
	s := newSigner(t)
	as := newArtifactServer(t, s, []byte("archive"))
	as.keyserver = false
	as.fallback = s.armoredPub
	p, _ := newTestPipeline(t)

	verified, err := p.Acquire(context.Background(), as.artifact(), as.anchor(s.fingerprint))
	require.NoError(t, err)
	verified.Close()
}

func TestAcquireTrustAnchorUnavailable(t *testing.T) {
	s := newSigner(t)
	as := newArtifactServer(t, s, []byte("archive"))
	as.keyserver = false
	as.fallback = ""
	p, base := newTestPipeline(t)

	_, err := p.Acquire(context.Background(), as.artifact(), as.anchor(s.fingerprint))
	require.ErrorIs(t, err, resource.ErrTrustAnchorUnavailable)
	assert.Equal(t, 0, scratchEntries(t, base), "nothing may be downloaded without a trust anchor")
}

func TestAcquireNoFingerprintsPinned(t *testing.T) {
	s := newSigner(t)
	as := newArtifactServer(t, s, []byte("archive"))
	p, _ := newTestPipeline(t)

	_, err := p.Acquire(context.Background(), as.artifact(), as.anchor())
	require.ErrorIs(t, err, resource.ErrTrustAnchorUnavailable)
}

func TestAcquireChecksumMismatchPurgesScratch(t *testing.T) {
	s := newSigner(t)
	as := newArtifactServer(t, s, []byte("archive"))
	as.checksum = strings.Repeat("0", 64) + "  nextcloud-1.0.0.tar.bz2\n"
	p, base := newTestPipeline(t)

	_, err := p.Acquire(context.Background(), as.artifact(), as.anchor(s.fingerprint))
	require.ErrorIs(t, err, resource.ErrVerificationFailed)
	assert.Equal(t, 0, scratchEntries(t, base), "verification failure must purge the scratch area")
}

func TestAcquireUnknownSignerPurgesScratch(t *testing.T) {
	good := newSigner(t)
	rogue := newSigner(t)
	as := newArtifactServer(t, good, []byte("archive"))
	as.signature = rogue.sign(t, []byte("archive"))
	p, base := newTestPipeline(t)

	_, err := p.Acquire(context.Background(), as.artifact(), as.anchor(good.fingerprint))
	require.ErrorIs(t, err, resource.ErrVerificationFailed)
	assert.Equal(t, 0, scratchEntries(t, base))
}

func TestAcquireUnpinnedSignerFingerprint(t *testing.T) {
	pinned := newSigner(t)
	actual := newSigner(t)
	as := newArtifactServer(t, actual, []byte("archive"))

	// The fallback certificate materializes the actual signer's key, so the
	// cryptographic check succeeds; the pinned fingerprint does not match.
	anchor := TrustAnchor{
		Fingerprints:    []string{pinned.fingerprint},
		FallbackCertURL: as.URL + "/fallback.asc",
	}
	as.fallback = actual.armoredPub
	p, _ := newTestPipeline(t)

	_, err := p.Acquire(context.Background(), as.artifact(), anchor)
	require.ErrorIs(t, err, resource.ErrVerificationFailed)
	assert.Contains(t, err.Error(), "not a pinned trust anchor")
}

func TestAcquireTamperedArtifact(t *testing.T) {
	s := newSigner(t)
	as := newArtifactServer(t, s, []byte("archive"))
	// Recompute the checksum for the tampered bytes so only the signature
	// check can catch the substitution.
	tampered := []byte("tampered archive")
	digest := sha256.Sum256(tampered)
	as.archive = tampered
	as.checksum = hex.EncodeToString(digest[:]) + "  nextcloud-1.0.0.tar.bz2\n"
	p, base := newTestPipeline(t)

	_, err := p.Acquire(context.Background(), as.artifact(), as.anchor(s.fingerprint))
	require.ErrorIs(t, err, resource.ErrVerificationFailed)
	assert.Equal(t, 0, scratchEntries(t, base))
}

func TestAcquireKeepsScratchOnDownloadError(t *testing.T) {
	s := newSigner(t)
	as := newArtifactServer(t, s, []byte("archive"))
	art := as.artifact()
	art.ChecksumURL = as.URL + "/missing.sha256"
	p, base := newTestPipeline(t)

	_, err := p.Acquire(context.Background(), art, as.anchor(s.fingerprint))
	require.Error(t, err)
	assert.False(t, resource.IsConfigError(err))
	assert.Equal(t, 1, scratchEntries(t, base), "unrelated failures keep the scratch area for inspection")
}

func TestVerifySignatureEmptyKeyring(t *testing.T) {
	err := verifySignature(nil, strings.NewReader("data"), "sig", TrustAnchor{})
	require.ErrorIs(t, err, resource.ErrTrustAnchorUnavailable)
}

func TestScratchLifecycle(t *testing.T) {
	base := t.TempDir()
	scratch, err := NewScratch(base)
	require.NoError(t, err)

	path := scratch.Path("artifact.tar.bz2")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.FileExists(t, path)

	require.NoError(t, scratch.Purge())
	assert.NoDirExists(t, scratch.Dir())
}
