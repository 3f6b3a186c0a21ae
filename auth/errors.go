// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import "errors"

var (
	// ErrNotFound is returned when a token does not resolve to a record.
	// Lookups filtered on usability return it for expired and revoked
	// tokens too, so callers cannot tell the cases apart.
	ErrNotFound = errors.New("token not found")

	// ErrUserNotFound is returned by a UserLoader for an unknown identity.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateValue is returned when a token value is already stored.
	ErrDuplicateValue = errors.New("duplicate token value")
)
