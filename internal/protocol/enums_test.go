package protocol

import "testing"

func TestSettleBothSplit(t *testing.T) {
	result, payout := Settle(ChoiceSplit, ChoiceSplit)
	if result != ResultBothSplit {
		t.Errorf("expected ResultBothSplit, got %v", result)
	}
	if payout != (Payout{A: 3, B: 3}) {
		t.Errorf("expected 3/3 payout, got %+v", payout)
	}
}

func TestSettleSplitVsSteal(t *testing.T) {
	result, payout := Settle(ChoiceSplit, ChoiceSteal)
	if result != ResultAgentBSteals {
		t.Errorf("expected ResultAgentBSteals, got %v", result)
	}
	if payout != (Payout{A: 1, B: 5}) {
		t.Errorf("expected 1/5 payout, got %+v", payout)
	}
}

func TestSettleStealVsSplit(t *testing.T) {
	result, payout := Settle(ChoiceSteal, ChoiceSplit)
	if result != ResultAgentASteals {
		t.Errorf("expected ResultAgentASteals, got %v", result)
	}
	if payout != (Payout{A: 5, B: 1}) {
		t.Errorf("expected 5/1 payout, got %+v", payout)
	}
}

func TestSettleBothSteal(t *testing.T) {
	result, payout := Settle(ChoiceSteal, ChoiceSteal)
	if result != ResultBothSteal {
		t.Errorf("expected ResultBothSteal, got %v", result)
	}
	if payout != (Payout{A: 0, B: 0}) {
		t.Errorf("expected 0/0 payout, got %+v", payout)
	}
}

func TestTimeoutPayoutPartial(t *testing.T) {
	if p := TimeoutPayout(true, false); p != (Payout{A: 1, B: 0}) {
		t.Errorf("expected 1/0 for A-only submit, got %+v", p)
	}
	if p := TimeoutPayout(false, true); p != (Payout{A: 0, B: 1}) {
		t.Errorf("expected 0/1 for B-only submit, got %+v", p)
	}
}

func TestTimeoutPayoutFull(t *testing.T) {
	if p := TimeoutPayout(false, false); p != (Payout{A: 0, B: 0}) {
		t.Errorf("expected 0/0 for full timeout, got %+v", p)
	}
}

func TestChoiceStringRoundTrip(t *testing.T) {
	cases := map[Choice]string{
		ChoiceNone:  "NONE",
		ChoiceSplit: "SPLIT",
		ChoiceSteal: "STEAL",
	}
	for choice, want := range cases {
		if got := choice.String(); got != want {
			t.Errorf("Choice(%d).String() = %q, want %q", choice, got, want)
		}
	}
}

func TestTournamentStateString(t *testing.T) {
	if got := TournamentActive.String(); got != "ACTIVE" {
		t.Errorf("TournamentActive.String() = %q, want ACTIVE", got)
	}
	if got := TournamentState(99).String(); got != "NONE" {
		t.Errorf("unknown state should default to NONE, got %q", got)
	}
}
