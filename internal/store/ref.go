package store

import (
	"strconv"

	"github.com/google/uuid"
)

// EnrolleeRef identifies an enrollee by exactly one of a durable chat handle
// or a generated guid. The zero value is invalid; construct through
// RefByHandle, RefByGuid or ParseRef so the invariant holds by construction.
type EnrolleeRef struct {
	handle int64
	guid   string
}

// RefByHandle builds a reference for an enrollee with a durable chat handle.
func RefByHandle(handle int64) EnrolleeRef {
	return EnrolleeRef{handle: handle}
}

// RefByGuid builds a reference for a blind enrollee keyed by guid.
func RefByGuid(guid string) EnrolleeRef {
	return EnrolleeRef{guid: guid}
}

// NewGuid generates an opaque identifier for a blind registration.
func NewGuid() string {
	return uuid.NewString()
}

// ParseRef reads a reference from its canonical key: a decimal handle, or
// any other non-empty string as a guid.
func ParseRef(s string) (EnrolleeRef, error) {
	if s == "" {
		return EnrolleeRef{}, ErrInvalidReference
	}
	if handle, err := strconv.ParseInt(s, 10, 64); err == nil && handle > 0 {
		return RefByHandle(handle), nil
	}
	return RefByGuid(s), nil
}

// Handle returns the chat handle and whether this is a handle reference.
func (r EnrolleeRef) Handle() (int64, bool) {
	return r.handle, r.handle != 0
}

// Guid returns the guid and whether this is a guid reference.
func (r EnrolleeRef) Guid() (string, bool) {
	return r.guid, r.handle == 0 && r.guid != ""
}

// Validate returns ErrInvalidReference unless exactly one variant is set.
func (r EnrolleeRef) Validate() error {
	if r.handle != 0 && r.guid != "" {
		return ErrInvalidReference
	}
	if r.handle == 0 && r.guid == "" {
		return ErrInvalidReference
	}
	return nil
}

// String returns the canonical key: the decimal handle or the guid.
func (r EnrolleeRef) String() string {
	if r.handle != 0 {
		return strconv.FormatInt(r.handle, 10)
	}
	return r.guid
}
