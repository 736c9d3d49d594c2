package dataapi

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
)

var ordinalPattern = regexp.MustCompile(`\$(\d+)`)

// RewritePlaceholders turns every ordinal placeholder $k into the named
// placeholder :pk. The rewrite is textual; it does not parse SQL.
func RewritePlaceholders(sql string) string {
	return ordinalPattern.ReplaceAllString(sql, ":p$1")
}

// ParamName is the Data API parameter name for 1-based ordinal k.
func ParamName(k int) string {
	return "p" + strconv.Itoa(k)
}

// EncodeParams converts ordinal params into named Data API parameters.
// params[i] is sent as p{i+1}.
func EncodeParams(params []interface{}) ([]types.SqlParameter, error) {
	out := make([]types.SqlParameter, 0, len(params))
	for i, v := range params {
		field, hint, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ParamName(i+1), err)
		}
		out = append(out, types.SqlParameter{
			Name:     aws.String(ParamName(i + 1)),
			Value:    field,
			TypeHint: hint,
		})
	}
	return out, nil
}

func encodeValue(v interface{}) (types.Field, types.TypeHint, error) {
	switch x := v.(type) {
	case nil:
		return &types.FieldMemberIsNull{Value: true}, "", nil
	case string:
		return &types.FieldMemberStringValue{Value: x}, "", nil
	case bool:
		return &types.FieldMemberBooleanValue{Value: x}, "", nil
	case int:
		return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
	case int8:
		return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
	case int16:
		return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
	case int32:
		return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
	case int64:
		return &types.FieldMemberLongValue{Value: x}, "", nil
	case uint:
		return encodeUnsigned(uint64(x))
	case uint8:
		return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
	case uint16:
		return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
	case uint32:
		return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
	case uint64:
		return encodeUnsigned(x)
	case float32:
		return &types.FieldMemberDoubleValue{Value: float64(x)}, "", nil
	case float64:
		return &types.FieldMemberDoubleValue{Value: x}, "", nil
	case []byte:
		return &types.FieldMemberBlobValue{Value: x}, "", nil
	case time.Time:
		return &types.FieldMemberStringValue{Value: x.UTC().Format("2006-01-02 15:04:05.000")}, types.TypeHintTimestamp, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return &types.FieldMemberStringValue{Value: fmt.Sprint(x)}, "", nil
		}
		return &types.FieldMemberStringValue{Value: string(b)}, "", nil
	}
}

// encodeUnsigned rejects values the signed longValue cannot hold.
func encodeUnsigned(x uint64) (types.Field, types.TypeHint, error) {
	if x > math.MaxInt64 {
		return nil, "", fmt.Errorf("unsigned value %d overflows a 64-bit signed integer", x)
	}
	return &types.FieldMemberLongValue{Value: int64(x)}, "", nil
}

// DecodeField converts a typed Data API field into a plain Go value.
// Unknown or empty fields decode to nil.
func DecodeField(f types.Field) interface{} {
	switch v := f.(type) {
	case *types.FieldMemberIsNull:
		return nil
	case *types.FieldMemberStringValue:
		return v.Value
	case *types.FieldMemberLongValue:
		return v.Value
	case *types.FieldMemberDoubleValue:
		return v.Value
	case *types.FieldMemberBooleanValue:
		return v.Value
	case *types.FieldMemberBlobValue:
		return v.Value
	case *types.FieldMemberArrayValue:
		return decodeArray(v.Value)
	default:
		return nil
	}
}

func decodeArray(a types.ArrayValue) interface{} {
	switch v := a.(type) {
	case *types.ArrayValueMemberStringValues:
		return derefAll(v.Value)
	case *types.ArrayValueMemberLongValues:
		return derefAll(v.Value)
	case *types.ArrayValueMemberDoubleValues:
		return derefAll(v.Value)
	case *types.ArrayValueMemberBooleanValues:
		return derefAll(v.Value)
	case *types.ArrayValueMemberArrayValues:
		out := make([]interface{}, len(v.Value))
		for i, inner := range v.Value {
			out[i] = decodeArray(inner)
		}
		return out
	default:
		return nil
	}
}

// derefAll unwraps the SDK's element pointers. A nil element is SQL NULL.
func derefAll[T any](ptrs []*T) []interface{} {
	out := make([]interface{}, len(ptrs))
	for i, p := range ptrs {
		if p != nil {
			out[i] = *p
		}
	}
	return out
}

// DecodeRecords zips each record against the column metadata by position.
// A column without a name is keyed col_{index} so no value is dropped.
func DecodeRecords(columns []types.ColumnMetadata, records [][]types.Field) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		row := make(map[string]interface{}, len(record))
		for i, field := range record {
			row[columnName(columns, i)] = DecodeField(field)
		}
		rows = append(rows, row)
	}
	return rows
}

func columnName(columns []types.ColumnMetadata, i int) string {
	if i < len(columns) {
		if name := aws.ToString(columns[i].Name); name != "" {
			return name
		}
		if name := aws.ToString(columns[i].Label); name != "" {
			return name
		}
	}
	return "col_" + strconv.Itoa(i)
}
