package domain

// Capability is an opaque identifier with a display name: a token denoting
// "this resource can do X". Capabilities are immutable after loading.
type Capability struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
