package ipallow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Empty(t *testing.T) {
	list, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, 0, list.Len())
}

func TestParse_WhitespaceAndEmptyTokensSkipped(t *testing.T) {
	list, err := Parse(" 203.0.113.10 , , 198.51.100.0/24 ")
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
}

func TestParse_InvalidPrefixRejectsWholeList(t *testing.T) {
	_, err := Parse("203.0.113.10,1.2.3.4/33")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{"1.2.3.4/33"}, perr.BadTokens)
}

func TestParse_MultipleBadTokensAllReported(t *testing.T) {
	_, err := Parse("not-an-ip,1.2.3.4/99,203.0.113.10")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.ElementsMatch(t, []string{"not-an-ip", "1.2.3.4/99"}, perr.BadTokens)
}

func TestParse_V4MappedV6Boundary(t *testing.T) {
	list, err := Parse("::ffff:127.0.0.1/104")
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())
	assert.Equal(t, V4, list[0].Version)
	assert.Equal(t, 8, list[0].Prefix)
}

func TestParse_V4MappedBelowMappedOffsetRejected(t *testing.T) {
	_, err := Parse("::ffff:127.0.0.1/64")
	require.Error(t, err)
}

func TestParse_BracketsAndZoneIndexStripped(t *testing.T) {
	list, err := Parse("[fe80::1%eth0]/64")
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())
	assert.Equal(t, V6, list[0].Version)
}

func TestMatches_ExactAndCIDR(t *testing.T) {
	list, err := Parse("203.0.113.10,198.51.100.0/24")
	require.NoError(t, err)

	assert.True(t, list.Matches("203.0.113.10"))
	assert.True(t, list.Matches("198.51.100.200"))
	assert.False(t, list.Matches("203.0.113.11"))
	assert.False(t, list.Matches("198.51.101.1"))
}

func TestMatches_IPv6(t *testing.T) {
	list, err := Parse("2001:db8::/32")
	require.NoError(t, err)

	assert.True(t, list.Matches("2001:db8::1"))
	assert.False(t, list.Matches("2001:db9::1"))
}

func TestMatches_VersionMismatchNeverMatches(t *testing.T) {
	list, err := Parse("203.0.113.0/24")
	require.NoError(t, err)
	assert.False(t, list.Matches("::1"))
}

func TestMatches_UniversalProperty(t *testing.T) {
	list, err := Parse("10.0.0.0/8,192.168.1.0/24,2001:db8::/32")
	require.NoError(t, err)

	inList := []string{"10.1.2.3", "192.168.1.5", "2001:db8::dead"}
	notInList := []string{"11.0.0.1", "192.168.2.5", "2001:db9::1"}

	for _, ip := range inList {
		assert.True(t, list.Matches(ip), "expected %s to match", ip)
	}
	for _, ip := range notInList {
		assert.False(t, list.Matches(ip), "expected %s to not match", ip)
	}
}

func TestMatches_MalformedNeverMatches(t *testing.T) {
	list, err := Parse("0.0.0.0/0")
	require.NoError(t, err)
	assert.False(t, list.Matches("not-an-ip"))
}
