package convention

import "gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

// Extras are transport options that can be set on any scope or request. Unset fields inherit
// from the enclosing scope.
type Extras struct {
	// TimeoutMS bounds a single request, including reading its body.
	TimeoutMS ldvalue.OptionalInt
	// FollowRedirects, when set to false, returns a redirect reply instead of following it.
	FollowRedirects *bool
}

// Merge returns e with every field that is set in o overridden.
func (e Extras) Merge(o Extras) Extras {
	if o.TimeoutMS.IsDefined() {
		e.TimeoutMS = o.TimeoutMS
	}
	if o.FollowRedirects != nil {
		v := *o.FollowRedirects
		e.FollowRedirects = &v
	}
	return e
}

func (e Extras) followsRedirects() bool {
	return e.FollowRedirects == nil || *e.FollowRedirects
}
