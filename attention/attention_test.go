package attention

import "testing"

func TestOnScroll_Threshold(t *testing.T) {
	cases := []struct {
		name string
		m    Metrics
		want bool
	}{
		{"at bottom", Metrics{ScrollHeight: 1000, ScrollTop: 600, ClientHeight: 400}, true},
		{"just inside", Metrics{ScrollHeight: 1000, ScrollTop: 501, ClientHeight: 400}, true},
		{"exactly threshold", Metrics{ScrollHeight: 1000, ScrollTop: 500, ClientHeight: 400}, false},
		{"far above", Metrics{ScrollHeight: 1000, ScrollTop: 0, ClientHeight: 400}, false},
		{"content shorter than view", Metrics{ScrollHeight: 100, ScrollTop: 0, ClientHeight: 400}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(DefaultThreshold, FollowNearBottom)
			if got := c.OnScroll(tc.m).NearBottom; got != tc.want {
				t.Errorf("NearBottom = %v, want %v", got, tc.want)
			}
			wantAff := Visible
			if tc.want {
				wantAff = Hidden
			}
			if c.Affordance() != wantAff {
				t.Errorf("affordance = %v, want %v", c.Affordance(), wantAff)
			}
		})
	}
}

func TestOnAppend_FollowAlwaysScrollsWhileReadingHistory(t *testing.T) {
	c := New(3, FollowAlways)
	away := Metrics{ScrollHeight: 200, ScrollTop: 0, ClientHeight: 20}
	c.OnScroll(away)
	if !c.OnAppend(away) {
		t.Error("FollowAlways must scroll on every append")
	}
}

func TestOnAppend_FollowNearBottom(t *testing.T) {
	c := New(3, FollowNearBottom)

	// Near the bottom: follow.
	c.OnScroll(Metrics{ScrollHeight: 100, ScrollTop: 80, ClientHeight: 20})
	if !c.OnAppend(Metrics{ScrollHeight: 102, ScrollTop: 80, ClientHeight: 20}) {
		t.Error("should follow when near the bottom")
	}

	// Scrolled away: keep position, raise the affordance.
	c.OnScroll(Metrics{ScrollHeight: 102, ScrollTop: 10, ClientHeight: 20})
	if c.OnAppend(Metrics{ScrollHeight: 104, ScrollTop: 10, ClientHeight: 20}) {
		t.Error("should not move the view while the user reads history")
	}
	if c.Affordance() != Visible {
		t.Errorf("affordance = %v, want visible", c.Affordance())
	}

	c.ScrollToLatest()
	if c.Affordance() != Hidden || !c.State().NearBottom {
		t.Error("ScrollToLatest should hide the affordance and mark near bottom")
	}
}

func TestNew_DefaultsThreshold(t *testing.T) {
	if got := New(0, FollowAlways).Threshold(); got != DefaultThreshold {
		t.Errorf("threshold = %d, want %d", got, DefaultThreshold)
	}
	var zero Controller
	if zero.Threshold() != DefaultThreshold || zero.Policy() != FollowAlways {
		t.Error("zero Controller should use the defaults")
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"":            FollowAlways,
		"always":      FollowAlways,
		"near-bottom": FollowNearBottom,
		"near_bottom": FollowNearBottom,
		"bogus":       FollowAlways,
	}
	for in, want := range cases {
		if got := ParsePolicy(in); got != want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", in, got, want)
		}
	}
}
