// Package herr defines the closed error-kind enum named in the external
// interfaces (spec §6) and a small wrapper so callers can both match on a
// sentinel kind and see the underlying cause.
package herr

import "fmt"

// Kind is one of the named error surfaces. It is a closed enum: no other
// values are ever constructed.
type Kind int

const (
	OK Kind = iota
	InvalidArgument
	NoMem
	HWIO
	Geometry
	AlignmentFail
	BadSuperblock
	Tampered
	WipePending
	VolumeLocked
	VersionIncompat
	Uninitialized
	DataRot
	EpochLost
	TimeDilation
	GenerationSkew
	MediaToxic
	BitmapCorrupt
	ProfileMismatch
	ThermalCritical
	ENOSPC
	EventHorizon
	GravityCollapse
	AccessDenied
	NotFound
	InternalFault
	EExist
)

var names = map[Kind]string{
	OK:              "OK",
	InvalidArgument: "INVALID_ARGUMENT",
	NoMem:           "NOMEM",
	HWIO:            "HW_IO",
	Geometry:        "GEOMETRY",
	AlignmentFail:   "ALIGNMENT_FAIL",
	BadSuperblock:   "BAD_SUPERBLOCK",
	Tampered:        "TAMPERED",
	WipePending:     "WIPE_PENDING",
	VolumeLocked:    "VOLUME_LOCKED",
	VersionIncompat: "VERSION_INCOMPAT",
	Uninitialized:   "UNINITIALIZED",
	DataRot:         "DATA_ROT",
	EpochLost:       "EPOCH_LOST",
	TimeDilation:    "TIME_DILATION",
	GenerationSkew:  "GENERATION_SKEW",
	MediaToxic:      "MEDIA_TOXIC",
	BitmapCorrupt:   "BITMAP_CORRUPT",
	ProfileMismatch: "PROFILE_MISMATCH",
	ThermalCritical: "THERMAL_CRITICAL",
	ENOSPC:          "ENOSPC",
	EventHorizon:    "EVENT_HORIZON",
	GravityCollapse: "GRAVITY_COLLAPSE",
	AccessDenied:    "ACCESS_DENIED",
	NotFound:        "NOT_FOUND",
	InternalFault:   "INTERNAL_FAULT",
	EExist:          "EEXIST",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Error pairs a Kind with an optional underlying cause, so errors.Is(err,
// herr.Sentinel(herr.EpochLost)) keeps working through fmt.Errorf("%w", ...)
// wrapping while %v still prints a useful message.
type Error struct {
	Kind  Kind
	Cause error
}

func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Cause: fmt.Errorf(format, args...)}
}

func Wrap(k Kind, cause error) *Error {
	return &Error{Kind: k, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, herr.Sentinel(herr.ENOSPC)) work by comparing
// kinds whenever the target is an *Error; the target's cause is ignored.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel returns a comparable sentinel value for a Kind, for use with
// errors.Is(err, herr.Sentinel(herr.ENOSPC)).
func Sentinel(k Kind) *Error { return &Error{Kind: k} }

// KindOf extracts the Kind from an error produced anywhere in the engine,
// defaulting to InternalFault for errors that did not originate here.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return InternalFault
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
