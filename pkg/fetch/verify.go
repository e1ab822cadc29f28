package fetch

import (
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// verifySignature checks a detached armored signature over the artifact
// against the materialized keyring and requires the actual signer to match
// one of the pinned fingerprints.
//
// Crypto tooling has been observed to report success when the signing key
// was simply unavailable. A missing key must never pass as verified: the
// keyring is checked up front and the returned signer identity is required
// and matched, rather than trusting a bare "ok".
func verifySignature(keyring openpgp.EntityList, artifact io.Reader, armoredSig string, anchor TrustAnchor) error {
	if len(keyring) == 0 {
		return fmt.Errorf("%w: refusing to verify with an empty keyring", resource.ErrTrustAnchorUnavailable)
	}

	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, artifact, strings.NewReader(armoredSig), nil)
	if err != nil {
		if err == pgperrors.ErrUnknownIssuer {
			return fmt.Errorf("%w: signature was made by a key that is not in the trust anchor", resource.ErrVerificationFailed)
		}
		return fmt.Errorf("%w: signature check: %v", resource.ErrVerificationFailed, err)
	}
	if signer == nil || signer.PrimaryKey == nil {
		// An "ok" without an identified signer is exactly the false-positive
		// condition this pipeline exists to catch.
		return fmt.Errorf("%w: signature check passed without identifying a signer", resource.ErrVerificationFailed)
	}

	got := fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint)
	if !anchor.normalized()[got] {
		return fmt.Errorf("%w: signer fingerprint %s is not a pinned trust anchor", resource.ErrVerificationFailed, got)
	}
	return nil
}
