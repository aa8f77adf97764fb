package staticsynth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdamache/memorybench/pkg/benchmark/synth/staticsynth"
)

func TestSynthesizer_JoinsContextsWithNewlines(t *testing.T) {
	s := staticsynth.Synthesizer{}
	out, err := s.Synthesize(context.Background(), "unused question", []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", out)
}

func TestSynthesizer_EmptyContextsYieldsEmptyString(t *testing.T) {
	s := staticsynth.Synthesizer{}
	out, err := s.Synthesize(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
