package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const digestA = "b5bb9d8014a0f9b1d61e21e796d78dccdf1352f23cd32812f4850b878ae4944c"
const digestB = "7d865e959b2466918c9863afca942d0fb89d7c9ac0c99bafc3749504ded97730"

func TestParseChecksumShaSumFormat(t *testing.T) {
	doc := digestA + "  nextcloud-28.0.4.tar.bz2\n"
	got, err := ParseChecksum(doc, "nextcloud-28.0.4.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, digestA, got)
}

func TestParseChecksumBinaryMarker(t *testing.T) {
	doc := digestA + " *nextcloud-28.0.4.tar.bz2\n"
	got, err := ParseChecksum(doc, "nextcloud-28.0.4.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, digestA, got)
}

func TestParseChecksumPicksMatchingEntry(t *testing.T) {
	doc := digestA + "  other.tar.bz2\n" + digestB + "  wanted.tar.bz2\n"
	got, err := ParseChecksum(doc, "wanted.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, digestB, got)
}

func TestParseChecksumBareDigest(t *testing.T) {
	got, err := ParseChecksum(digestA+"\n", "anything.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, digestA, got)
}

func TestParseChecksumMissingEntry(t *testing.T) {
	doc := digestA + "  other.tar.bz2\n"
	_, err := ParseChecksum(doc, "wanted.tar.bz2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wanted.tar.bz2")
}

func TestArtifactURLTriple(t *testing.T) {
	src, err := NewSource("")
	require.NoError(t, err)

	art := src.Artifact("28.0.4")
	assert.Equal(t, "https://download.nextcloud.com/server/releases/nextcloud-28.0.4.tar.bz2", art.ArchiveURL)
	assert.Equal(t, art.ArchiveURL+".sha256", art.ChecksumURL)
	assert.Equal(t, art.ArchiveURL+".asc", art.SignatureURL)
	assert.Equal(t, "nextcloud-28.0.4.tar.bz2", art.ArchiveName())
}

func TestSourceRequiresVersionPlaceholder(t *testing.T) {
	_, err := NewSource("https://example.com/static.tar.bz2")
	require.Error(t, err)
}
