package models

// Handle is a connection slot on a node. The empty name is the single positional slot
// that types with exactly one input or output expose.
type Handle struct {
	Name string `json:"name"`
}

var DefaultHandle = Handle{}

