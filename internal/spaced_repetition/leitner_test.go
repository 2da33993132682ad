package spaced_repetition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quizbox/pkg/models"
)

const now int64 = 1_750_000_000_000

func TestIntervalDays_Clamps(t *testing.T) {
	for b := -3; b <= 10; b++ {
		assert.Equal(t, IntervalDays(ClampBox(b)), IntervalDays(b), "box %d", b)
	}
	assert.Equal(t, 0, IntervalDays(-1))
	assert.Equal(t, 30, IntervalDays(99))
	assert.Equal(t, []int{0, 1, 3, 7, 14, 30}, boxIntervals[:])
}

func TestEnsure_FirstTouch(t *testing.T) {
	s := Ensure(nil, now)
	assert.Equal(t, 0, s.Box)
	assert.Equal(t, now, s.Next)
	assert.False(t, s.Revealed)
	assert.Empty(t, s.Log)
}

func TestRecord_Scenario(t *testing.T) {
	s := Record(nil, now, true, Response{})
	assert.Equal(t, 1, s.Box)
	assert.Equal(t, now+DayMillis, s.Next)
	assert.Equal(t, []models.LogEntry{{T: now, OK: true}}, s.Log)
	assert.True(t, s.Revealed)
	require.NotNil(t, s.RevealedAt)
	assert.Equal(t, now, *s.RevealedAt)

	later := now + 5
	s2 := Record(&s, later, false, Response{})
	assert.Equal(t, 0, s2.Box)
	assert.Equal(t, later, s2.Next)
	require.Len(t, s2.Log, 2)
	assert.False(t, s2.Log[1].OK)
}

func TestRecord_WrongAlwaysResets(t *testing.T) {
	for box := 0; box <= MaxBox; box++ {
		prior := models.QuestionState{Box: box, Next: now, Log: []models.LogEntry{}}
		got := Record(&prior, now, false, Response{})
		assert.Equal(t, 0, got.Box, "prior box %d", box)
	}
}

func TestRecord_MaxBoxPinned(t *testing.T) {
	s := models.QuestionState{Box: MaxBox, Log: []models.LogEntry{}}
	at := now
	for i := 0; i < 4; i++ {
		s = Record(&s, at, true, Response{})
		assert.Equal(t, MaxBox, s.Box)
		assert.Equal(t, at+30*DayMillis, s.Next)
		at = s.Next
	}
	assert.Len(t, s.Log, 4)
}

func TestRecord_SameMillisecondNotDeduplicated(t *testing.T) {
	s := Record(nil, now, true, Response{})
	s = Record(&s, now, true, Response{})
	assert.Len(t, s.Log, 2)
	assert.Equal(t, 2, s.Box)
}

func TestRecord_DoesNotMutatePrior(t *testing.T) {
	prior := Record(nil, now, true, Response{})
	prior.Log = append(make([]models.LogEntry, 0, 8), prior.Log...)
	before := prior.Clone()

	_ = Record(&prior, now+1, false, Response{})

	assert.Equal(t, before, prior)
	assert.Equal(t, models.LogEntry{}, prior.Log[:2][1])
}

func TestRecord_ResponseFieldsPreserved(t *testing.T) {
	chosen := 2
	s := Record(nil, now, true, Response{Chosen: &chosen})
	require.NotNil(t, s.LastChosen)
	assert.Equal(t, 2, *s.LastChosen)

	s = Record(&s, now+1, false, Response{})
	require.NotNil(t, s.LastChosen)
	assert.Equal(t, 2, *s.LastChosen)
	assert.Nil(t, s.LastText)

	text := "mitochondria"
	s = Record(&s, now+2, true, Response{Text: &text})
	require.NotNil(t, s.LastText)
	assert.Equal(t, "mitochondria", *s.LastText)
}

func TestMarkRevealed_DoesNotSchedule(t *testing.T) {
	s := MarkRevealed(nil, now)
	assert.Equal(t, 0, s.Box)
	assert.Equal(t, now, s.Next)
	assert.True(t, s.Revealed)
	assert.Empty(t, s.Log)

	answered := Record(nil, now, true, Response{})
	revealed := MarkRevealed(&answered, now+10)
	assert.Equal(t, answered.Box, revealed.Box)
	assert.Equal(t, answered.Next, revealed.Next)
	assert.Equal(t, answered.Log, revealed.Log)
	assert.Equal(t, now+10, *revealed.RevealedAt)
}

func TestToggleHighlight_Twice(t *testing.T) {
	orig := Record(nil, now, true, Response{})
	once := ToggleHighlight(&orig, now+1)
	assert.True(t, once.Highlight)

	twice := ToggleHighlight(&once, now+2)
	assert.Equal(t, orig, twice)
}

func TestOrderDue(t *testing.T) {
	ch := models.ChapterProgress{
		"q1":   {Next: now - 10},
		"q2":   {Next: now + DayMillis},
		"q3":   {Next: now - 100},
		"q4":   {Next: now - 10},
		"gone": {Next: now - 1000},
	}
	got := OrderDue(ch, []string{"q1", "q2", "q3", "q4"}, now)
	assert.Equal(t, []string{"q3", "q1", "q4"}, got)
}
