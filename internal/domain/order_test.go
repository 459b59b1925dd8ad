package domain

import "testing"

func TestCanTransitionLegalEdges(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateCreated, StatePending, true},
		{StateCreated, StateRejected, true},
		{StateCreated, StatePlaced, false},
		{StatePending, StatePlacing, true},
		{StatePending, StateCancelling, true},
		{StatePlacing, StatePlaced, true},
		{StatePlacing, StateCancelling, false},
		{StatePlaced, StateFilling, true},
		{StatePlaced, StateCancelling, true},
		{StateFilling, StateFilled, true},
		{StateFilling, StateFilling, true},
		{StateCancelling, StateCancelled, true},
		{StateFilled, StatePending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCanTransitionTerminalStatesHaveNoEdges(t *testing.T) {
	t.Parallel()
	for _, s := range []State{StateFilled, StateRejected, StateCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
		for _, to := range []State{StateCreated, StatePending, StatePlacing, StatePlaced, StateFilling, StateCancelling} {
			if CanTransition(s, to) {
				t.Errorf("CanTransition(%s, %s) = true, want false (terminal)", s, to)
			}
		}
	}
}

func TestCanTransitionUnknownFromState(t *testing.T) {
	t.Parallel()
	if CanTransition(State("BOGUS"), StatePending) {
		t.Error("CanTransition from an unknown state should be false")
	}
}

func TestOrderCloneIsIndependent(t *testing.T) {
	t.Parallel()
	o := &Order{
		ID:       "ord-1",
		Metadata: map[string]any{"k": "v"},
	}
	cp := o.Clone()
	cp.Metadata["k"] = "changed"
	cp.ID = "ord-2"

	if o.Metadata["k"] != "v" {
		t.Errorf("original metadata mutated: got %v", o.Metadata["k"])
	}
	if o.ID != "ord-1" {
		t.Errorf("original ID mutated: got %v", o.ID)
	}
}

func TestOrderCloneNil(t *testing.T) {
	t.Parallel()
	var o *Order
	if o.Clone() != nil {
		t.Error("Clone of nil Order should return nil")
	}
}
