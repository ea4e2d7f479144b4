package repository

import "errors"

// Allocation errors that can be checked with errors.Is(). These are
// caller errors or pool conditions, never retried automatically.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrResourcePoolExhausted is returned when no VLAN or address is
	// available for allocation.
	ErrResourcePoolExhausted = errors.New("resource pool exhausted")

	// ErrAddressNotAllocated is returned on release or association of an
	// address that is not currently leased.
	ErrAddressNotAllocated = errors.New("address not allocated")

	// ErrAddressAlreadyAssociated is returned when either side of a
	// public/private association is already bound.
	ErrAddressAlreadyAssociated = errors.New("address already associated")

	// ErrAddressNotAssociated is returned on disassociation of an
	// unbound public address.
	ErrAddressNotAssociated = errors.New("address not associated")
)
