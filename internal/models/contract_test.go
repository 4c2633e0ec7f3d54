package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     ContractStatus
		to       ContractStatus
		expected bool
	}{
		// Happy path
		{ContractStatusProposed, ContractStatusAccepted, true},
		{ContractStatusProposed, ContractStatusRejected, true},
		{ContractStatusAccepted, ContractStatusFinished, true},
		{ContractStatusAccepted, ContractStatusCancelled, true},

		// No regressions
		{ContractStatusAccepted, ContractStatusProposed, false},
		{ContractStatusFinished, ContractStatusAccepted, false},
		{ContractStatusCancelled, ContractStatusAccepted, false},
		{ContractStatusRejected, ContractStatusProposed, false},

		// No skips or cross edges
		{ContractStatusProposed, ContractStatusFinished, false},
		{ContractStatusProposed, ContractStatusCancelled, false},
		{ContractStatusAccepted, ContractStatusRejected, false},
		{ContractStatusRejected, ContractStatusFinished, false},
		{ContractStatusFinished, ContractStatusCancelled, false},
		{ContractStatusCancelled, ContractStatusFinished, false},

		// Unknown statuses
		{"nonexistent", ContractStatusAccepted, false},
		{ContractStatusProposed, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []ContractStatus{
		ContractStatusProposed, ContractStatusAccepted, ContractStatusRejected,
		ContractStatusFinished, ContractStatusCancelled,
	}

	for _, status := range allStatuses {
		if _, ok := ValidContractTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidContractTransitions map", status)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []ContractStatus{ContractStatusRejected, ContractStatusFinished, ContractStatusCancelled}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("status %q should be terminal", status)
		}
		if transitions := ValidContractTransitions[status]; len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}

	for _, status := range []ContractStatus{ContractStatusProposed, ContractStatusAccepted} {
		if status.IsTerminal() {
			t.Errorf("status %q should not be terminal", status)
		}
	}
}
