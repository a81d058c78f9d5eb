package ffprobe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeDurationCandidates_EmptyReturnsError(t *testing.T) {
	_, err := ProbeDurationCandidates(context.Background(), nil, "")
	require.Error(t, err, "expected error when no candidates are provided")
}
