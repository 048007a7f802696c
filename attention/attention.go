// Package attention decides when the chat view follows new messages and when
// it shows a "new messages" affordance instead.
package attention

// DefaultThreshold is the near-bottom distance used by pixel-based views.
const DefaultThreshold = 100

// Metrics describes the viewport at one instant. Units are whatever the view
// scrolls in: pixels in a browser, rows in a terminal.
type Metrics struct {
	ScrollHeight int // total content height
	ScrollTop    int // offset of the first visible unit
	ClientHeight int // visible height
}

// distance returns how far the visible window is from the end of the content.
func (m Metrics) distance() int {
	return m.ScrollHeight - m.ScrollTop - m.ClientHeight
}

// State is the scroll state derived from Metrics.
type State struct {
	NearBottom bool
}

// Affordance is the UI-facing "new messages" signal.
type Affordance int

const (
	Hidden Affordance = iota
	Visible
)

func (a Affordance) String() string {
	if a == Visible {
		return "visible"
	}
	return "hidden"
}

// Policy selects what happens when the log grows.
type Policy int

const (
	// FollowAlways scrolls to the latest entry on every append, even while
	// the user is reading older history.
	FollowAlways Policy = iota
	// FollowNearBottom scrolls only when the view was already near the
	// bottom and raises the affordance otherwise.
	FollowNearBottom
)

// ParsePolicy maps a config value to a Policy. Unknown values fall back to
// FollowAlways.
func ParsePolicy(s string) Policy {
	switch s {
	case "near-bottom", "near_bottom":
		return FollowNearBottom
	default:
		return FollowAlways
	}
}

func (p Policy) String() string {
	if p == FollowNearBottom {
		return "near-bottom"
	}
	return "always"
}

// Controller tracks scroll state and the affordance. The zero value uses
// DefaultThreshold and FollowAlways and starts at the bottom.
type Controller struct {
	threshold  int
	policy     Policy
	state      State
	affordance Affordance
}

// New returns a Controller. A non-positive threshold selects DefaultThreshold.
func New(threshold int, policy Policy) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Controller{
		threshold: threshold,
		policy:    policy,
		state:     State{NearBottom: true},
	}
}

// OnScroll recomputes the scroll state from m. Call it on every scroll event
// and after every scroll the view performs itself.
func (c *Controller) OnScroll(m Metrics) State {
	c.state = State{NearBottom: m.distance() < c.Threshold()}
	if c.state.NearBottom {
		c.affordance = Hidden
	} else {
		c.affordance = Visible
	}
	return c.state
}

// OnAppend is called after the log grew, with the metrics of the view before
// it moves. It reports whether the view must scroll to the latest entry. When
// it returns false the affordance is Visible.
func (c *Controller) OnAppend(m Metrics) bool {
	if c.policy == FollowAlways {
		return true
	}
	if c.state.NearBottom {
		return true
	}
	c.OnScroll(m)
	if !c.state.NearBottom {
		c.affordance = Visible
		return false
	}
	return true
}

// ScrollToLatest records that the user activated the affordance; the caller
// performs the scroll. The affordance is reset to Hidden.
func (c *Controller) ScrollToLatest() {
	c.state = State{NearBottom: true}
	c.affordance = Hidden
}

// State returns the last computed scroll state.
func (c *Controller) State() State { return c.state }

// Affordance returns the current affordance.
func (c *Controller) Affordance() Affordance { return c.affordance }

// Policy returns the follow policy.
func (c *Controller) Policy() Policy { return c.policy }

// Threshold returns the near-bottom threshold.
func (c *Controller) Threshold() int {
	if c.threshold <= 0 {
		return DefaultThreshold
	}
	return c.threshold
}
