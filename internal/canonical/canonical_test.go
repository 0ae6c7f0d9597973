package canonical

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/careers-ingest/internal/hash/sha256"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases host", "https://Jobs.Example.COM/Role/42", "https://jobs.example.com/Role/42"},
		{"strips trailing slash", "https://example.com/jobs/123/", "https://example.com/jobs/123"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"empty path untouched", "https://example.com", "https://example.com"},
		{"collapses slash run", "https://example.com/jobs//", "https://example.com/jobs"},
		{"keeps escaped slash before trailing slash", "https://x.com/files/a%2F/", "https://x.com/files/a%2F"},
		{"keeps trailing escaped slash", "https://x.com/files/a%2F", "https://x.com/files/a%2F"},
		{
			"drops tracking params keeping order",
			"https://example.com/jobs?utm_source=x&ref=abc&UTM_Medium=y&page=2&gclid=9",
			"https://example.com/jobs?ref=abc&page=2",
		},
		{"drops query entirely", "https://example.com/jobs/?fbclid=1&mc_cid=2&mc_eid=3", "https://example.com/jobs"},
		{"keeps fragment", "https://example.com/jobs/#apply", "https://example.com/jobs#apply"},
		{"keeps port", "http://LOCALHOST:8080/a/", "http://localhost:8080/a"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Canonicalize(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://Example.com/jobs/1/?utm_campaign=spring&b=2&a=1",
		"https://example.com/",
		"https://example.com/path%20with%20space/",
		"https://example.com/jobs?q=go+dev&utm_term=x",
		"https://example.com/a///",
		"HTTPS://EXAMPLE.COM/Jobs?Ref=X#frag",
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		require.NoError(t, err, in)
		twice, err := Canonicalize(once)
		require.NoError(t, err, once)
		require.Equal(t, once, twice, in)
	}
}

func TestCanonicalizeRejectsRelative(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "not a url", "/jobs/1", "example.com/jobs", "http://[::1"} {
		_, err := Canonicalize(in)
		require.Error(t, err, in)
		require.True(t, errors.Is(err, ErrInvalidURL), in)
	}
}

func TestKeyerJobKey(t *testing.T) {
	t.Parallel()

	k := NewKeyer(sha256.New())
	key, err := k.JobKey("acme", "https://acme.com/jobs/1")
	require.NoError(t, err)
	require.Equal(t, "698060f2ae23b054a2e8c919b5ae698146e4e2a4fe304340e9e94d69ee1f01d3", key)

	again, err := k.JobKey("acme", "https://acme.com/jobs/1")
	require.NoError(t, err)
	require.Equal(t, key, again)

	otherCompany, err := k.JobKey("globex", "https://acme.com/jobs/1")
	require.NoError(t, err)
	require.NotEqual(t, key, otherCompany)

	otherURL, err := k.JobKey("acme", "https://acme.com/jobs/2")
	require.NoError(t, err)
	require.NotEqual(t, key, otherURL)
}

func TestKeyerInlineJobKeyNormalizesTitle(t *testing.T) {
	t.Parallel()

	k := NewKeyer(sha256.New())
	key, err := k.InlineJobKey("acme", "https://acme.com/careers", "  Senior Engineer ")
	require.NoError(t, err)
	require.Equal(t, "576946871fdcf3c59153ad899b875a8c711d3aa447a9a0111b2bad15fb14f1cc", key)

	lower, err := k.InlineJobKey("acme", "https://acme.com/careers", "senior engineer")
	require.NoError(t, err)
	require.Equal(t, key, lower)

	linked, err := k.JobKey("acme", "https://acme.com/careers")
	require.NoError(t, err)
	require.NotEqual(t, key, linked)
}
