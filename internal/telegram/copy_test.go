package telegram

import (
	"strings"
	"testing"
)

func TestPacingDelayGrowsWithLength(t *testing.T) {
	short := pacingDelay("hey")
	long := pacingDelay("this reply is quite a bit longer than the short one")
	if long <= short {
		t.Fatalf("long reply delay %v not greater than short %v", long, short)
	}
}

func TestPacingDelayCapped(t *testing.T) {
	huge := pacingDelay(strings.Repeat("a", 5000))
	if huge != pacingMax {
		t.Fatalf("delay = %v, want capped at %v", huge, pacingMax)
	}
}

func TestFreeFooterSingular(t *testing.T) {
	if got := freeFooter(1); !strings.Contains(got, "1 free message left") {
		t.Fatalf("footer = %q", got)
	}
	if got := freeFooter(2); !strings.Contains(got, "2 free messages left") {
		t.Fatalf("footer = %q", got)
	}
}
