package engine

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestCorrelationTag(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tag := CorrelationTag("alpha", start, 0)
	require.Equal(t, tag, CorrelationTag("alpha", start, 0))
	require.Positive(t, tag)

	require.NotEqual(t, tag, CorrelationTag("beta", start, 0))
	require.NotEqual(t, tag, CorrelationTag("alpha", start.Add(time.Nanosecond), 0))
	require.NotEqual(t, tag, CorrelationTag("alpha", start, 1))

	input := []byte("alpha")
	input = binary.BigEndian.AppendUint64(input, uint64(start.UnixNano()))
	input = binary.BigEndian.AppendUint32(input, 0)
	require.Equal(t, int64(xxhash.Sum64(input)&tagMask), tag)
}

func TestIssueTagIsUnique(t *testing.T) {
	start := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)

	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		tag := issueTag("same-bot", start)
		require.Positive(t, tag)
		require.False(t, seen[tag], "tag %d issued twice", tag)
		seen[tag] = true
	}
}
