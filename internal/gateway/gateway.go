package gateway

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/congo-pay/druid/internal/identity"
)

// Step is what a visitor must do before reaching protected content.
type Step string

const (
	StepSignIn    Step = "sign-in"
	StepCreatePIN Step = "create-pin"
	StepPasskey   Step = "passkey"
	StepGranted   Step = "granted"
)

const (
	SignInPath       = "/auth/signin"
	DashboardPath    = "/dashboard"
	authPrefix       = "/auth/"
	onboardingPrefix = "/wallet/onboarding/"
)

// ErrRouteUserMismatch is returned when an onboarding route names a user
// other than the one in session.
var ErrRouteUserMismatch = errors.New("route user does not match session")

// Required maps the current identity (nil when nobody is signed in) to the
// step that must be completed next.
func Required(id *identity.Identity) Step {
	switch {
	case id == nil:
		return StepSignIn
	case !id.HasPIN():
		return StepCreatePIN
	case id.PasskeyAddress.State() == identity.PasskeyUnset:
		return StepPasskey
	default:
		return StepGranted
	}
}

// Path returns the route for step. The onboarding routes embed the user id.
func Path(step Step, userID int64) string {
	switch step {
	case StepCreatePIN:
		return onboardingPrefix + strconv.FormatInt(userID, 10)
	case StepPasskey:
		return onboardingPrefix + strconv.FormatInt(userID, 10) + "/passkey"
	case StepGranted:
		return DashboardPath
	default:
		return SignInPath
	}
}

// CheckRouteUser verifies that the user id carried by an onboarding route
// belongs to the signed-in identity.
func CheckRouteUser(routeUserID string, id *identity.Identity) error {
	if id == nil {
		return ErrRouteUserMismatch
	}
	n, err := strconv.ParseInt(routeUserID, 10, 64)
	if err != nil || n != id.ID {
		return ErrRouteUserMismatch
	}
	return nil
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Step     Step
	Redirect string
}

// Gateway guards a set of pages. It remembers which render cycle it last
// redirected in so repeated evaluations inside one cycle do not loop.
type Gateway struct {
	mu         sync.Mutex
	redirected bool
	cycle      uint64
}

// New builds a gateway.
func New() *Gateway {
	return &Gateway{}
}

// Evaluate decides whether the page at current may render for id. cycle
// identifies the render pass; loading is true while the identity is still
// being fetched, in which case nothing is decided yet. Redirect is empty when
// the page may render or when a redirect was already issued this cycle.
//
// The landing page always renders. The /auth/ pages render for visitors
// without a session; everyone else is sent to their required step.
func (g *Gateway) Evaluate(cycle uint64, id *identity.Identity, current string, loading bool) Decision {
	step := Required(id)
	if loading {
		return Decision{Step: step}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cycle != g.cycle {
		g.cycle = cycle
		g.redirected = false
	}

	var userID int64
	if id != nil {
		userID = id.ID
	}
	target := Path(step, userID)
	switch {
	case current == "/":
		return Decision{Step: step}
	case id == nil && strings.HasPrefix(current, authPrefix):
		return Decision{Step: step}
	case step == StepGranted && !strings.HasPrefix(current, authPrefix) && !strings.HasPrefix(current, onboardingPrefix):
		return Decision{Step: step}
	}
	if current == target || g.redirected {
		return Decision{Step: step}
	}
	g.redirected = true
	return Decision{Step: step, Redirect: target}
}
