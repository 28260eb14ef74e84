package follower

// Observer turns a stream of "currently playing" reads into track-change
// edges. It starts out knowing no previous track, so the first URI it sees
// is always a change.
type Observer struct {
	last  string
	known bool
}

// Observe records uri and reports whether it differs from the previous one.
// An empty uri means nothing is playing and leaves the state untouched.
func (o *Observer) Observe(uri string) bool {
	if uri == "" {
		return false
	}
	if o.known && uri == o.last {
		return false
	}
	o.last = uri
	o.known = true
	return true
}

// Last returns the most recently recorded URI, if any.
func (o *Observer) Last() (string, bool) {
	return o.last, o.known
}
