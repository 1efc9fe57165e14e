package extension

import "errors"

// Error taxonomy for package validation, trust verification and the
// lifecycle registry. All are recoverable by the caller; none of the code
// in this package panics.
var (
	// ErrInvalidPackageSchema indicates the package's schema_version is not
	// the supported constant.
	ErrInvalidPackageSchema = errors.New("unsupported package schema version")

	// ErrInvalidPluginID indicates the manifest's plugin id normalizes to an
	// empty string.
	ErrInvalidPluginID = errors.New("invalid plugin id")

	// ErrInvalidPackage indicates a structurally malformed package: blank
	// required fields, no artifacts, or a wire payload that fails strict
	// decoding.
	ErrInvalidPackage = errors.New("invalid plugin package")

	// ErrUntrustedSigner indicates the signature names a signer absent from
	// the trusted-signer table.
	ErrUntrustedSigner = errors.New("untrusted signer")

	// ErrSignatureMismatch indicates the recomputed digest does not match
	// the signature value carried by the package.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrHostIncompatible indicates the host API version falls outside the
	// manifest's [min, max] bounds.
	ErrHostIncompatible = errors.New("host API version incompatible")

	// ErrAlreadyExists indicates a plugin with the same normalized id is
	// already registered.
	ErrAlreadyExists = errors.New("plugin already exists")

	// ErrNotFound indicates no plugin with the given id is registered.
	ErrNotFound = errors.New("plugin not found")

	// ErrInvalidStateTransition indicates a lifecycle call whose current
	// state is not in the transition's valid-from set.
	ErrInvalidStateTransition = errors.New("invalid lifecycle state transition")
)
