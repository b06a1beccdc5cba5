package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolFixture() *EntrantList {
	return &EntrantList{
		EventID:   "ev-1",
		Enrolled:  []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"},
		Selected:  []string{"a@x.com"},
		Cancelled: []string{"b@x.com"},
	}
}

func TestCandidatePool(t *testing.T) {
	list := poolFixture()

	pool := list.CandidatePool()
	assert.NotContains(t, pool, "a@x.com")
	// Cancelled entrants stay eligible for an initial draw.
	assert.ElementsMatch(t, []string{"b@x.com", "c@x.com", "d@x.com"}, pool)
}

func TestReplacementPool(t *testing.T) {
	list := poolFixture()
	list.Selected = append(list.Selected, "c@x.com")
	list.Accepted = append(list.Accepted, "c@x.com")

	pool := list.ReplacementPool()
	// Selected, accepted and cancelled entrants never re-enter.
	assert.Equal(t, []string{"d@x.com"}, pool)
}

func TestEntrantListValidate(t *testing.T) {
	limit := 4

	t.Run("accepts a consistent list", func(t *testing.T) {
		list := &EntrantList{
			EventID:   "ev-1",
			Enrolled:  []string{"a@x.com", "b@x.com", "c@x.com"},
			Selected:  []string{"a@x.com", "c@x.com"},
			Accepted:  []string{"a@x.com"},
			Cancelled: []string{"b@x.com"},
		}
		require.NoError(t, list.Validate(2, &limit))
	})

	t.Run("a re-selected cancelled entrant is valid state", func(t *testing.T) {
		list := &EntrantList{
			EventID:   "ev-1",
			Enrolled:  []string{"a@x.com", "b@x.com"},
			Selected:  []string{"a@x.com"},
			Cancelled: []string{"a@x.com"},
		}
		require.NoError(t, list.Validate(1, nil))
	})

	t.Run("rejects membership outside enrolled", func(t *testing.T) {
		list := &EntrantList{
			EventID:  "ev-1",
			Selected: []string{"ghost@x.com"},
		}
		require.Error(t, list.Validate(2, nil))
	})

	t.Run("rejects accepted and cancelled overlap", func(t *testing.T) {
		list := &EntrantList{
			EventID:   "ev-1",
			Enrolled:  []string{"a@x.com"},
			Selected:  []string{"a@x.com"},
			Accepted:  []string{"a@x.com"},
			Cancelled: []string{"a@x.com"},
		}
		require.Error(t, list.Validate(2, nil))
	})

	t.Run("rejects selections beyond the limit", func(t *testing.T) {
		list := &EntrantList{
			EventID:  "ev-1",
			Enrolled: []string{"a@x.com", "b@x.com"},
			Selected: []string{"a@x.com", "b@x.com"},
		}
		require.Error(t, list.Validate(1, nil))
	})
}
