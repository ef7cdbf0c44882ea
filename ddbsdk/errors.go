package ddbsdk

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrConditionFailed means the store rejected a conditional write: the
	// condition evaluated false server-side because someone else changed the
	// item. Callers branch on this to handle concurrent modification.
	ErrConditionFailed = errors.New("vogels: conditional write failed")

	// ErrExpiredIterator means a shard iterator handle outlived its server-side
	// validity window. Recoverable by reopening at the last safe position.
	ErrExpiredIterator = errors.New("vogels: shard iterator expired")

	// ErrTrimmed means the requested stream position has fallen out of the
	// retention window.
	ErrTrimmed = errors.New("vogels: stream position trimmed")
)

// MapError translates typed AWS failures into this library's sentinels,
// keeping the original error in the chain. Anything unrecognized is returned
// unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: %w", ErrConditionFailed, err)
	}
	var expired *streamtypes.ExpiredIteratorException
	if errors.As(err, &expired) {
		return fmt.Errorf("%w: %w", ErrExpiredIterator, err)
	}
	var trimmed *streamtypes.TrimmedDataAccessException
	if errors.As(err, &trimmed) {
		return fmt.Errorf("%w: %w", ErrTrimmed, err)
	}
	return err
}

// retryable reports whether an error is a transient store failure worth
// retrying with backoff. Conditional failures and expired iterators are
// never retried here: they need caller- or shard-level handling.
func retryable(err error) bool {
	var api smithy.APIError
	if !errors.As(err, &api) {
		return false
	}
	switch api.ErrorCode() {
	case "ProvisionedThroughputExceededException",
		"ThrottlingException",
		"RequestLimitExceeded",
		"LimitExceededException",
		"InternalServerError",
		"ServiceUnavailable":
		return true
	}
	return api.ErrorFault() == smithy.FaultServer
}
