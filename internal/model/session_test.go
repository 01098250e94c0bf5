package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Depth
		wantErr bool
	}{
		{"quick", DepthQuick, false},
		{"Standard", DepthStandard, false},
		{" deep ", DepthDeep, false},
		{"exhaustive", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDepth(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultDepthProfiles(t *testing.T) {
	t.Parallel()

	p := DefaultDepthProfiles()
	assert.InDelta(t, 0.20, p[DepthQuick].Budget, 1e-9)
	assert.Equal(t, 1, p[DepthQuick].MaxHops)
	assert.InDelta(t, 0.50, p[DepthStandard].Budget, 1e-9)
	assert.Equal(t, 3, p[DepthStandard].MaxHops)
	assert.InDelta(t, 2.00, p[DepthDeep].Budget, 1e-9)
	assert.Equal(t, 5, p[DepthDeep].MaxHops)
}

func TestSessionTransition_HopCycle(t *testing.T) {
	t.Parallel()

	s := NewResearchSession("s1", "query", DepthStandard, 0.5)
	assert.Equal(t, SessionPlanning, s.Status)

	for _, next := range []SessionStatus{
		SessionSearching, SessionAnalyzing, SessionValidating,
		SessionSearching, SessionAnalyzing, SessionValidating,
	} {
		require.NoError(t, s.Transition(next))
	}
	require.NoError(t, s.Complete(0.9))
	assert.Equal(t, SessionComplete, s.Status)
	assert.NotNil(t, s.CompletedAt)
	assert.InDelta(t, 0.9, s.FinalConfidence, 1e-9)
}

func TestSessionTransition_Illegal(t *testing.T) {
	t.Parallel()

	s := NewResearchSession("s1", "query", DepthQuick, 0.2)
	err := s.Transition(SessionValidating)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal session transition")

	require.NoError(t, s.Transition(SessionSearching))
	assert.Error(t, s.Transition(SessionPlanning))
}

func TestSessionTransition_ErrorFromAnyState(t *testing.T) {
	t.Parallel()

	for _, from := range []SessionStatus{SessionPlanning, SessionSearching, SessionAnalyzing, SessionValidating} {
		s := &ResearchSession{ID: "s", Status: from}
		require.NoError(t, s.Transition(SessionError), from)
	}
}

func TestSessionTerminalIsFrozen(t *testing.T) {
	t.Parallel()

	s := NewResearchSession("s1", "query", DepthQuick, 0.2)
	s.Fail(errors.New("reasoning down"))
	assert.Equal(t, SessionError, s.Status)
	assert.Equal(t, "reasoning down", s.Error)

	assert.Error(t, s.Transition(SessionSearching))
	s.Fail(errors.New("second"))
	assert.Equal(t, "reasoning down", s.Error)
}

func TestBeginHop_Monotonic(t *testing.T) {
	t.Parallel()

	s := NewResearchSession("s1", "query", DepthDeep, 2)
	h1 := s.BeginHop(0)
	h2 := s.BeginHop(0.4)
	assert.Equal(t, 1, h1.Number)
	assert.Equal(t, 2, h2.Number)
	assert.Equal(t, 2, s.CurrentHop)
	assert.InDelta(t, 0.4, h2.ConfidenceBefore, 1e-9)
}

func TestHopGainAndCost(t *testing.T) {
	t.Parallel()

	h := Hop{ConfidenceBefore: 0.3, ConfidenceAfter: 0.55, SearchCost: 0.03, ReasoningCost: 0.02}
	assert.InDelta(t, 0.25, h.Gain(), 1e-9)
	assert.InDelta(t, 0.05, h.TotalCost(), 1e-9)
}

func TestCostBreakdownTotal(t *testing.T) {
	t.Parallel()

	c := NewCostBreakdown(0.04, 1000, 0.01)
	assert.InDelta(t, 0.05, c.Total(), 1e-9)
}

func TestAlertLevelRank(t *testing.T) {
	t.Parallel()

	assert.Less(t, AlertMedium.Rank(), AlertHigh.Rank())
	assert.Less(t, AlertHigh.Rank(), AlertCritical.Rank())
	assert.Equal(t, 0, AlertLevel("bogus").Rank())
}
