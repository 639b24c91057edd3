package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_Lifecycle(t *testing.T) {
	s := New()
	assert.False(t, s.Armed())

	s.Arm("2+2?")
	assert.True(t, s.Armed())
	assert.Equal(t, "2+2?", s.Question())

	_, ok := s.Answer()
	assert.False(t, ok)

	s.SetAnswer("4")
	answer, ok := s.Answer()
	assert.True(t, ok)
	assert.Equal(t, "4", answer)

	s.Arm("3+4?")
	_, ok = s.Answer()
	assert.False(t, ok, "re-arming must drop the stale answer")

	s.SetAnswer("7")
	s.ClearAnswer()
	assert.True(t, s.Armed())
	_, ok = s.Answer()
	assert.False(t, ok)

	s.Clear()
	assert.False(t, s.Armed())
	assert.Empty(t, s.Question())
}
