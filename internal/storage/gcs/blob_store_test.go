package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	name, err := objectName("", "extractions/c1/s1.json")
	require.NoError(t, err)
	require.Equal(t, "extractions/c1/s1.json", name)

	name, err = objectName("prod", "/extractions/c1/s1.json")
	require.NoError(t, err)
	require.Equal(t, "prod/extractions/c1/s1.json", name)

	_, err = objectName("prod", "  ")
	require.Error(t, err)
}
