package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEntry is returned when an Entrada is appended while the vehicle is inside.
	ErrDuplicateEntry = errors.New("vehicle already has an open entry")
	// ErrNoOpenEntry is returned when a Salida is appended while the vehicle is outside.
	ErrNoOpenEntry = errors.New("vehicle has no open entry")
	// ErrLedgerInconsistency means the latest event is an Entrada but no Entrada could be read.
	ErrLedgerInconsistency = errors.New("ledger inconsistency: open vehicle without entry event")
	// ErrNegativeDuration is returned when the exit timestamp precedes the paired entry.
	ErrNegativeDuration = errors.New("exit timestamp precedes the entry timestamp")
	// ErrNotFound is returned when no event has the requested id.
	ErrNotFound = errors.New("event not found")
	// ErrUnknownVehicle is returned when the registry does not know the vehicle.
	ErrUnknownVehicle = errors.New("vehicle not found in registry")
)

// ValidationError reports a malformed argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Error codes reported to clients.
const (
	CodeDuplicateEntry = "ENTRADA_DUPLICADA"
	CodeNoOpenEntry    = "SIN_ENTRADA_PREVIA"
	CodeInconsistency  = "INCONSISTENCIA_DATOS"
	CodeNegativeStay   = "DURACION_NEGATIVA"
	CodeUnknownVehicle = "VEHICULO_NO_ENCONTRADO"
	CodeValidation     = "VALIDACION"
	CodeNotFound       = "NO_ENCONTRADO"
	CodeStore          = "ERROR_ALMACENAMIENTO"
)

// Code classifies err into one of the client error codes. Anything that is
// not a ledger error is a store failure.
func Code(err error) string {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrDuplicateEntry):
		return CodeDuplicateEntry
	case errors.Is(err, ErrNoOpenEntry):
		return CodeNoOpenEntry
	case errors.Is(err, ErrLedgerInconsistency):
		return CodeInconsistency
	case errors.Is(err, ErrNegativeDuration):
		return CodeNegativeStay
	case errors.Is(err, ErrUnknownVehicle):
		return CodeUnknownVehicle
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.As(err, &verr):
		return CodeValidation
	default:
		return CodeStore
	}
}
