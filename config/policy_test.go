package config

import "testing"

func TestPolicyWireValidateEachKind(t *testing.T) {
	cases := []struct {
		name string
		p    PolicyWire
		ok   bool
	}{
		{"fixed_stop valid", PolicyWire{Kind: "fixed_stop", StopPct: 0.1}, true},
		{"fixed_stop bad pct", PolicyWire{Kind: "fixed_stop", StopPct: 1.5}, false},
		{"time_stop valid", PolicyWire{Kind: "time_stop", HoldMs: 1000}, true},
		{"time_stop bad", PolicyWire{Kind: "time_stop", HoldMs: 0}, false},
		{"trailing_stop valid", PolicyWire{Kind: "trailing_stop", ActivationPct: 0.1, TrailPct: 0.05}, true},
		{"ladder valid", PolicyWire{Kind: "ladder", Levels: []LadderLevelSpec{{Multiple: 2, Fraction: 1}}}, true},
		{"ladder bad multiple", PolicyWire{Kind: "ladder", Levels: []LadderLevelSpec{{Multiple: 0.5, Fraction: 1}}}, false},
		{"combo nested rejected", PolicyWire{Kind: "combo", Parts: []PolicyWire{{Kind: "combo"}}}, false},
		{"unknown kind", PolicyWire{Kind: "bogus"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected invalid, got nil")
			}
		})
	}
}

func TestComboMergesFieldByField(t *testing.T) {
	combo := PolicyWire{
		Kind: "combo",
		Parts: []PolicyWire{
			{Kind: "ladder", Levels: []LadderLevelSpec{{Multiple: 3, Fraction: 0.5}, {Multiple: 2, Fraction: 0.5}}},
			{Kind: "trailing_stop", ActivationPct: 0.2, TrailPct: 0.05, HardStopPct: 0.1},
		},
	}
	plan, err := combo.ToExitPlan(1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Ladder.Enabled || len(plan.Ladder.Levels) != 2 {
		t.Fatalf("expected merged ladder with 2 levels, got %+v", plan.Ladder)
	}
	if plan.Ladder.Levels[0].Multiple != 2 || plan.Ladder.Levels[1].Multiple != 3 {
		t.Fatalf("expected levels sorted ascending, got %+v", plan.Ladder.Levels)
	}
	if !plan.Trailing.Enabled || !plan.Trailing.HasHardStopBps {
		t.Fatalf("expected trailing block with hard stop merged in, got %+v", plan.Trailing)
	}
}

func TestFixedStopSerialisesToHardStopAndOptionalTP(t *testing.T) {
	p := PolicyWire{Kind: "fixed_stop", StopPct: 0.1, TakeProfitPct: 0.2}
	plan, err := p.ToExitPlan(1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Trailing.Enabled || plan.Trailing.HardStopBps != 1000 {
		t.Fatalf("expected hard_stop_bps=1000, got %+v", plan.Trailing)
	}
	if !plan.Ladder.Enabled || len(plan.Ladder.Levels) != 1 || plan.Ladder.Levels[0].Fraction != 1 {
		t.Fatalf("expected single full-fraction TP level, got %+v", plan.Ladder)
	}
}

func TestDecodePolicyWireRejectsUnknownFields(t *testing.T) {
	_, err := DecodePolicyWireBytes([]byte(`{"kind":"fixed_stop","stopPct":0.1,"bogusField":true}`))
	if err == nil {
		t.Fatalf("expected an error decoding an unknown field")
	}
}

func TestDecodePolicyWireRoundTrip(t *testing.T) {
	p, err := DecodePolicyWireBytes([]byte(`{"kind":"ladder","levels":[{"multiple":2,"fraction":1}]}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if p.Kind != "ladder" || len(p.Levels) != 1 || p.Levels[0].Multiple != 2 {
		t.Fatalf("unexpected decoded policy: %+v", p)
	}
}
