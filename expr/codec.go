package expr

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Codec converts local values to their wire representation. The renderer
// only requires that encoding be deterministic. Values that are already
// types.AttributeValue must pass through unchanged so pre-encoded operands
// (e.g. tracked snapshots) can be compared against.
type Codec interface {
	Encode(v any) (types.AttributeValue, error)
}

// DefaultCodec marshals through the aws attributevalue package.
var DefaultCodec Codec = marshalCodec{}

type marshalCodec struct{}

func (marshalCodec) Encode(v any) (types.AttributeValue, error) {
	if av, ok := v.(types.AttributeValue); ok {
		return av, nil
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value of type %T: %w", v, err)
	}
	return av, nil
}

// WireKind returns the wire type tag of an encoded value ("S", "N", "SS",
// ...), without re-encoding it.
func WireKind(av types.AttributeValue) string {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	default:
		return ""
	}
}

// IsNoValue reports whether an encoded value represents absence on the wire:
// an explicit NULL or an empty set, neither of which can be stored or
// usefully compared for equality by DynamoDB.
func IsNoValue(av types.AttributeValue) bool {
	return isNoValue(av)
}

func isNoValue(av types.AttributeValue) bool {
	switch v := av.(type) {
	case *types.AttributeValueMemberNULL:
		return true
	case *types.AttributeValueMemberSS:
		return len(v.Value) == 0
	case *types.AttributeValueMemberNS:
		return len(v.Value) == 0
	case *types.AttributeValueMemberBS:
		return len(v.Value) == 0
	}
	return false
}
