package expr

import "errors"

// ErrInvalidCondition marks a condition that cannot be rendered into a valid
// DynamoDB expression (operator/operand mismatch, malformed path, ...).
// Construction is always permissive; validation happens at render time so
// conditions can be built before the target attribute type is known.
var ErrInvalidCondition = errors.New("vogels: invalid condition")
