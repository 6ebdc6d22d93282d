package nodes

import "errors"

// Domain errors for the nodes package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, nodes.ErrUnknownKey) {
//	    // handle lookup miss
//	}
var (
	// ErrMalformedPayload is returned when a controller XML payload cannot be decoded.
	ErrMalformedPayload = errors.New("nodes: malformed payload")

	// ErrTransportUnavailable is returned when the state fetcher returns no data.
	ErrTransportUnavailable = errors.New("nodes: transport unavailable")

	// ErrUnknownKey is returned when a key resolves to no id, name or position.
	ErrUnknownKey = errors.New("nodes: unrecognized key")

	// ErrUnknownAttribute is returned when delegated attribute access has no leaf
	// to forward to, or the leaf does not carry the attribute.
	ErrUnknownAttribute = errors.New("nodes: unknown attribute")

	// ErrUnknownID is returned when an event message references an id the
	// registry has never seen.
	ErrUnknownID = errors.New("nodes: unknown id")

	// ErrInvalidRecord is returned when a record's type and leaf disagree.
	ErrInvalidRecord = errors.New("nodes: invalid record")
)

// KeyError reports the key that failed to resolve in View.Get.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return "nodes: unrecognized key: " + e.Key
}

// Unwrap lets errors.Is match ErrUnknownKey.
func (e *KeyError) Unwrap() error {
	return ErrUnknownKey
}

// AttributeError reports the attribute that could not be delegated.
type AttributeError struct {
	Name string
}

func (e *AttributeError) Error() string {
	return "nodes: no attribute: " + e.Name
}

// Unwrap lets errors.Is match ErrUnknownAttribute.
func (e *AttributeError) Unwrap() error {
	return ErrUnknownAttribute
}
