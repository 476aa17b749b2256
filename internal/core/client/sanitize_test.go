package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	got, err := SanitizeText("  line one\nline\ttwo\x07\r  ")
	require.NoError(t, err)
	require.Equal(t, "line one\nline\ttwo", got)

	_, err = SanitizeText(" \x00\x01 ")
	require.ErrorIs(t, err, ErrEmptyText)

	_, err = SanitizeText(strings.Repeat("a", MaxTextLength+1))
	require.ErrorIs(t, err, ErrTextTooLong)

	got, err = SanitizeText(strings.Repeat("नम", MaxTextLength/2))
	require.NoError(t, err)
	require.NotEmpty(t, got)
}
