package console

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallenge(t *testing.T) {
	c := NewChallenge(rand.New(rand.NewPCG(1, 2)))
	require.Len(t, c.Code(), ChallengeLength)
	for _, r := range c.Code() {
		assert.True(t, strings.ContainsRune(challengeAlphabet, r))
	}

	assert.NoError(t, c.Verify(c.Code()))
	assert.NoError(t, c.Verify(" "+strings.ToLower(c.Code())+"\n"))
	assert.ErrorIs(t, c.Verify(""), ErrChallengeMismatch)
	assert.ErrorIs(t, c.Verify(c.Code()+"X"), ErrChallengeMismatch)
	assert.ErrorIs(t, Challenge{}.Verify(""), ErrChallengeMismatch)

	same := NewChallenge(rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, c.Code(), same.Code())
}

type row struct{ id string }

func rows(ids ...string) []row {
	out := make([]row, 0, len(ids))
	for _, id := range ids {
		out = append(out, row{id: id})
	}
	return out
}

func TestSelectionDelete(t *testing.T) {
	s := NewSelection(rows("vec_1", "vec_2", "vec_3"), func(r row) string { return r.id })
	s.Toggle("vec_1")
	s.Toggle("vec_3")
	s.Toggle("vec_9")
	assert.Equal(t, []string{"vec_1", "vec_3"}, s.Selected)

	var got []string
	err := s.DeleteSelected(context.Background(), func(_ context.Context, ids []string) error {
		got = ids
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vec_1", "vec_3"}, got)
	assert.Equal(t, rows("vec_2"), s.Items)
	assert.Empty(t, s.Selected)
}

func TestSelectionDeleteFailureKeepsState(t *testing.T) {
	s := NewSelection(rows("vec_1", "vec_2"), func(r row) string { return r.id })
	s.SelectAll()

	boom := errors.New("boom")
	err := s.DeleteSelected(context.Background(), func(context.Context, []string) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, rows("vec_1", "vec_2"), s.Items)
	assert.Equal(t, []string{"vec_1", "vec_2"}, s.Selected)

	s.Toggle("vec_1")
	assert.Equal(t, []string{"vec_2"}, s.Selected)
}
