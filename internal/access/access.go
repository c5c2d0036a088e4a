// Package access turns a match result into an access decision, optionally
// requiring the face to belong to the password-authenticated user.
package access

import (
	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/matcher"
)

// Reason explains a decision to clients.
type Reason string

const (
	ReasonGranted       Reason = "granted"
	ReasonNotRecognized Reason = "not_recognized"
	ReasonAmbiguous     Reason = "ambiguous"
	ReasonMismatch      Reason = "identity_mismatch"
	ReasonLoginRequired Reason = "login_required"
)

// Principal is the identity established by a password login.
type Principal struct {
	ID    string
	Name  string
	Level gallery.Level
}

// Decision is the granted level and why. Level is LevelNone unless Granted.
type Decision struct {
	Granted  bool
	Level    gallery.Level
	Reason   Reason
	Identity *gallery.Identity
	Distance float64
}

// Policy configures Decide.
type Policy struct {
	// RequireSession denies face authentication without a login session.
	RequireSession bool
}

// Decide applies the default policy (session optional).
func Decide(result matcher.Result, session *Principal) (Decision, error) {
	return Policy{}.Decide(result, session)
}

// Decide grants the matched level. An unrecognized face is a plain denial;
// a face that belongs to someone other than the session user is denied with
// an identity mismatch error.
func (p Policy) Decide(result matcher.Result, session *Principal) (Decision, error) {
	if p.RequireSession && session == nil {
		return Decision{Reason: ReasonLoginRequired},
			apperr.New(apperr.CodeAuthentication, "login required")
	}

	if !result.Matched || result.Identity == nil {
		reason := ReasonNotRecognized
		if result.Ambiguous {
			reason = ReasonAmbiguous
		}
		return Decision{Reason: reason}, nil
	}

	if session != nil && session.ID != result.Identity.ID {
		return Decision{Reason: ReasonMismatch, Identity: result.Identity, Distance: result.Distance},
			apperr.New(apperr.CodeIdentityMismatch, "face does not match logged-in user")
	}

	return Decision{
		Granted:  true,
		Level:    result.Level,
		Reason:   ReasonGranted,
		Identity: result.Identity,
		Distance: result.Distance,
	}, nil
}
