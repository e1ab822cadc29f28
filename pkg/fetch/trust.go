package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// TrustAnchor is the set of accepted signer fingerprints plus where to
// materialize the matching public keys from: a keyserver lookup by
// fingerprint, with a fixed HTTPS certificate URL as fallback.
type TrustAnchor struct {
	Fingerprints    []string
	Keyserver       string
	FallbackCertURL string
}

// normalized returns the fingerprint set in canonical form (upper-case hex,
// no separators) for membership checks.
func (t TrustAnchor) normalized() map[string]bool {
	set := make(map[string]bool, len(t.Fingerprints))
	for _, f := range t.Fingerprints {
		set[canonicalFingerprint(f)] = true
	}
	return set
}

func canonicalFingerprint(f string) string {
	f = strings.ReplaceAll(f, " ", "")
	f = strings.TrimPrefix(strings.ToUpper(f), "0X")
	return f
}

// resolveTrust materializes the trust anchor as a usable keyring. It tries
// the keyserver for each pinned fingerprint first, then the fallback
// certificate. Exactly one of the two paths must yield at least one key;
// an empty result is TrustAnchorUnavailable, never implicit trust.
func (p *Pipeline) resolveTrust(ctx context.Context, anchor TrustAnchor) (openpgp.EntityList, error) {
	if len(anchor.Fingerprints) == 0 {
		return nil, fmt.Errorf("%w: no signer fingerprints pinned", resource.ErrTrustAnchorUnavailable)
	}

	var keyring openpgp.EntityList
	var keyserverErr error

	if anchor.Keyserver != "" {
		for _, f := range anchor.Fingerprints {
			armored, err := p.keyserverLookup(ctx, anchor.Keyserver, canonicalFingerprint(f))
			if err != nil {
				keyserverErr = err
				continue
			}
			entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
			if err != nil {
				keyserverErr = fmt.Errorf("parse keyserver response for %s: %w", f, err)
				continue
			}
			keyring = append(keyring, entities...)
		}
	}

	if len(keyring) == 0 && anchor.FallbackCertURL != "" {
		p.log.Warn("keyserver lookup failed, importing fallback certificate",
			"url", anchor.FallbackCertURL, "keyserver_error", keyserverErr)

		armored, err := p.downloadString(ctx, anchor.FallbackCertURL)
		if err != nil {
			return nil, fmt.Errorf("%w: keyserver failed (%v) and fallback fetch failed: %v",
				resource.ErrTrustAnchorUnavailable, keyserverErr, err)
		}
		entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
		if err != nil {
			return nil, fmt.Errorf("%w: keyserver failed (%v) and fallback certificate unparsable: %v",
				resource.ErrTrustAnchorUnavailable, keyserverErr, err)
		}
		keyring = entities
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("%w: keyserver and fallback both produced no keys (keyserver: %v)",
			resource.ErrTrustAnchorUnavailable, keyserverErr)
	}
	return keyring, nil
}

// keyserverLookup fetches an armored key by fingerprint over HKP.
func (p *Pipeline) keyserverLookup(ctx context.Context, server, fingerprint string) (string, error) {
	lookup := fmt.Sprintf("%s/pks/lookup?op=get&options=mr&search=0x%s",
		strings.TrimSuffix(server, "/"), url.QueryEscape(fingerprint))
	armored, err := p.downloadString(ctx, lookup)
	if err != nil {
		return "", err
	}
	if !strings.Contains(armored, "BEGIN PGP PUBLIC KEY BLOCK") {
		return "", fmt.Errorf("keyserver %s returned no key for %s", server, fingerprint)
	}
	return armored, nil
}
