package settlement

import (
	"errors"
	"testing"
	"time"
)

func TestComputeCommission(t *testing.T) {
	tests := []struct {
		price int64
		rate  string
		want  int64
	}{
		{15000, "0.10", 1500},
		{9999, "0.10", 1000},
		{9994, "0.10", 999},
		{5, "0.10", 1}, // 0.5 rounds up
		{4, "0.10", 0},
		{0, "0.10", 0},
		{12345, "0.125", 1543}, // 1543.125
		{1, "0.5", 1},
		{20000, "0", 0},
		{20000, "1", 20000},
	}

	for _, tt := range tests {
		got, err := ComputeCommission(tt.price, MustParseRate(tt.rate))
		if err != nil {
			t.Fatalf("ComputeCommission(%d, %s): %v", tt.price, tt.rate, err)
		}
		if got != tt.want {
			t.Errorf("ComputeCommission(%d, %s) = %d, want %d", tt.price, tt.rate, got, tt.want)
		}
	}

	if _, err := ComputeCommission(-1, DefaultRate); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("negative price: err = %v", err)
	}
}

func TestParseRate(t *testing.T) {
	if r, err := ParseRate(""); err != nil || r.String() != DefaultRate.String() {
		t.Errorf("empty rate = %v, %v", r, err)
	}
	if c, _ := ComputeCommission(15000, DefaultRate); c != 1500 {
		t.Errorf("default commission on 15000 = %d, want 1500", c)
	}
	for _, bad := range []string{"abc", "-0.1", "1.5"} {
		if _, err := ParseRate(bad); err == nil {
			t.Errorf("ParseRate(%q) accepted", bad)
		}
	}
}

func TestAttachCommissionOnce(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New("bk-1", "c", "w", 15000, "BRL", now)

	if s.OrderID != OrderIDFor("bk-1") {
		t.Fatalf("order id not derived from booking")
	}

	changed, err := s.AttachCommission(1500, DefaultRate, "tx-1", now)
	if err != nil || !changed {
		t.Fatalf("first attach: changed=%v err=%v", changed, err)
	}
	changed, err = s.AttachCommission(1500, DefaultRate, "tx-1", now)
	if err != nil || changed {
		t.Fatalf("repeat attach: changed=%v err=%v", changed, err)
	}
	if _, err := s.AttachCommission(1600, DefaultRate, "tx-1", now); !errors.Is(err, ErrCommissionSet) {
		t.Fatalf("different commission: err = %v", err)
	}
	if *s.Commission != 1500 || s.Status != StatusSettled {
		t.Errorf("settlement = %+v", s)
	}
}

func TestOrderIDStable(t *testing.T) {
	if OrderIDFor("bk-1") != OrderIDFor("bk-1") {
		t.Fatal("order id not deterministic")
	}
	if OrderIDFor("bk-1") == OrderIDFor("bk-2") {
		t.Fatal("order ids collide")
	}
}
