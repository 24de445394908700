// Package errors provides structured error handling for the unifiles core.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Identity resolution errors
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeNotFound          Code = "NOT_FOUND"
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"

	// Access gate errors
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// Sync engine errors
	CodeSubscriptionError  Code = "SUBSCRIPTION_ERROR"
	CodeSubscriptionClosed Code = "SUBSCRIPTION_CLOSED"

	// Record store errors
	CodeRecordNotFound     Code = "RECORD_NOT_FOUND"
	CodeEmptyPartition     Code = "EMPTY_PARTITION"
	CodeEmptyRecordID      Code = "EMPTY_RECORD_ID"
	CodeInvalidPredicate   Code = "INVALID_PREDICATE"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"

	// Session errors
	CodeSessionTokenInvalid Code = "SESSION_TOKEN_INVALID"
)
