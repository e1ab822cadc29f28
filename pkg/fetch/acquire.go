package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ncsteward/ncsteward/pkg/release"
	"github.com/ncsteward/ncsteward/pkg/resource"
)

// Pipeline downloads and verifies release artifacts. One Pipeline may serve
// many convergence runs; each Acquire call owns its own scratch area.
type Pipeline struct {
	client      *http.Client
	scratchBase string
	log         *slog.Logger
}

// New creates a Pipeline. A zero timeout keeps the client's default; callers
// are expected to bound acquisition through it since downloads can stall.
func New(scratchBase string, timeout time.Duration, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		client:      &http.Client{Timeout: timeout},
		scratchBase: scratchBase,
		log:         log,
	}
}

// Verified is an artifact that passed checksum and signature verification.
// Close purges the scratch area holding it; callers invoke it after the
// artifact has been extracted.
type Verified struct {
	Path    string
	scratch *Scratch
}

// Close removes the scratch area and the verified artifact with it.
func (v *Verified) Close() error {
	return v.scratch.Purge()
}

// Acquire downloads the artifact triple and verifies it against the trust
// anchor. Callers gate Acquire on a probe: it never runs against an already
// extracted target.
//
// On any verification failure the scratch area is deleted and the artifact
// never reaches extraction. On unrelated failures (network errors before
// anything was verified) the scratch area is kept for inspection.
func (p *Pipeline) Acquire(ctx context.Context, art release.Artifact, anchor TrustAnchor) (*Verified, error) {
	// Trust anchor first: without a usable key nothing may be installed,
	// so fail before touching the network for the artifact itself.
	keyring, err := p.resolveTrust(ctx, anchor)
	if err != nil {
		return nil, err
	}

	scratch, err := NewScratch(p.scratchBase)
	if err != nil {
		return nil, err
	}

	archivePath := scratch.Path(art.ArchiveName())

	p.log.Info("downloading release artifact", "url", art.ArchiveURL, "version", art.Version)
	if err := p.download(ctx, art.ArchiveURL, archivePath); err != nil {
		return nil, err
	}

	sig, err := p.downloadString(ctx, art.SignatureURL)
	if err != nil {
		return nil, err
	}

	checksumDoc, err := p.downloadString(ctx, art.ChecksumURL)
	if err != nil {
		return nil, err
	}
	digest, err := release.ParseChecksum(checksumDoc, art.ArchiveName())
	if err != nil {
		return nil, p.purgeAndFail(scratch, fmt.Errorf("%w: %v", resource.ErrVerificationFailed, err))
	}

	if err := verifyChecksum(archivePath, digest); err != nil {
		return nil, p.purgeOnVerificationFailure(scratch, err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("reopen artifact for verification: %w", err)
	}
	err = verifySignature(keyring, f, sig, anchor)
	f.Close()
	if err != nil {
		return nil, p.purgeOnVerificationFailure(scratch, err)
	}

	p.log.Info("artifact verified", "version", art.Version, "path", archivePath)
	return &Verified{Path: archivePath, scratch: scratch}, nil
}

// purgeOnVerificationFailure discards the scratch area for verification
// failures only; other errors keep it so the evidence survives.
func (p *Pipeline) purgeOnVerificationFailure(scratch *Scratch, err error) error {
	if errors.Is(err, resource.ErrVerificationFailed) || errors.Is(err, resource.ErrTrustAnchorUnavailable) {
		return p.purgeAndFail(scratch, err)
	}
	return err
}

func (p *Pipeline) purgeAndFail(scratch *Scratch, err error) error {
	if perr := scratch.Purge(); perr != nil {
		p.log.Warn("failed to purge scratch area", "dir", scratch.Dir(), "error", perr)
	}
	return err
}
