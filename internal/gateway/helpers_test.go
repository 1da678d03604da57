package gateway

import (
	"net/http/httptest"
	"testing"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/protocol"
)

func TestParseUint64Path(t *testing.T) {
	if id, ok := parseUint64Path("/match/42", "/match/"); !ok || id != 42 {
		t.Errorf("expected (42, true), got (%d, %v)", id, ok)
	}
	if _, ok := parseUint64Path("/match/", "/match/"); ok {
		t.Error("expected an empty id segment to fail")
	}
	if _, ok := parseUint64Path("/match/abc", "/match/"); ok {
		t.Error("expected a non-numeric id to fail")
	}
	if _, ok := parseUint64Path("/match/-1", "/match/"); ok {
		t.Error("expected a negative id to fail")
	}
}

func TestParseLimit(t *testing.T) {
	if n, ok := parseLimit("50"); !ok || n != 50 {
		t.Errorf("expected (50, true), got (%d, %v)", n, ok)
	}
	if _, ok := parseLimit("abc"); ok {
		t.Error("expected a non-numeric limit to fail")
	}
	if _, ok := parseLimit("99999999999999"); ok {
		t.Error("expected an absurdly large limit to be rejected")
	}
}

func TestRoleFromQuery(t *testing.T) {
	cases := []struct {
		query string
		want  broadcast.Role
	}{
		{"", broadcast.RoleAgent},
		{"role=agent", broadcast.RoleAgent},
		{"role=spectator", broadcast.RoleSpectator},
		{"role=bettor", broadcast.RoleBettor},
		{"role=bogus", broadcast.RoleAgent},
	}
	for _, c := range cases {
		r := httptest.NewRequest("GET", "/ws?"+c.query, nil)
		if got := roleFromQuery(r); got != c.want {
			t.Errorf("roleFromQuery(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func TestDecodeHex(t *testing.T) {
	b, err := decodeHex("0xdeadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 4 {
		t.Errorf("expected 4 decoded bytes, got %d", len(b))
	}

	if _, err := decodeHex("0xzz"); err == nil {
		t.Error("expected invalid hex to error")
	}
}

func TestProtocolChoice(t *testing.T) {
	if protocolChoice(1) != protocol.ChoiceSplit {
		t.Errorf("expected protocolChoice(1) to be ChoiceSplit, got %v", protocolChoice(1))
	}
	if protocolChoice(2) != protocol.ChoiceSteal {
		t.Errorf("expected protocolChoice(2) to be ChoiceSteal, got %v", protocolChoice(2))
	}
}
