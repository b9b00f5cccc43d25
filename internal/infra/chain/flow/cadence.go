package flow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// cadenceValue is one JSON-Cadence encoded value.
type cadenceValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type cadenceComposite struct {
	ID     string `json:"id"`
	Fields []struct {
		Name  string       `json:"name"`
		Value cadenceValue `json:"value"`
	} `json:"fields"`
}

// Composite is a decoded struct, resource or event.
type Composite struct {
	ID     string
	Fields map[string]any
}

// decodeBase64Value decodes a base64 JSON-Cadence payload.
func decodeBase64Value(payload string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return decodeValue(raw)
}

func decodeValue(raw []byte) (any, error) {
	var v cadenceValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cadence value: %w", err)
	}
	return v.decode()
}

func (v cadenceValue) decode() (any, error) {
	switch v.Type {
	case "Void":
		return nil, nil
	case "Optional":
		if len(v.Value) == 0 || string(v.Value) == "null" {
			return nil, nil
		}
		return decodeValue(v.Value)
	case "Bool":
		var b bool
		err := json.Unmarshal(v.Value, &b)
		return b, err
	case "String", "Character", "Address":
		var s string
		err := json.Unmarshal(v.Value, &s)
		return s, err
	case "UFix64", "Fix64":
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, err
		}
		return decimal.NewFromString(s)
	case "UInt", "UInt8", "UInt16", "UInt32", "UInt64", "Word8", "Word16", "Word32", "Word64":
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, err
		}
		return strconv.ParseUint(s, 10, 64)
	case "Int", "Int8", "Int16", "Int32", "Int64":
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, err
		}
		return strconv.ParseInt(s, 10, 64)
	case "Array":
		var items []cadenceValue
		if err := json.Unmarshal(v.Value, &items); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			d, err := item.decode()
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case "Dictionary":
		var pairs []struct {
			Key   cadenceValue `json:"key"`
			Value cadenceValue `json:"value"`
		}
		if err := json.Unmarshal(v.Value, &pairs); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(pairs))
		for _, p := range pairs {
			k, err := p.Key.decode()
			if err != nil {
				return nil, err
			}
			val, err := p.Value.decode()
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case "Struct", "Resource", "Event", "Contract", "Enum":
		var c cadenceComposite
		if err := json.Unmarshal(v.Value, &c); err != nil {
			return nil, err
		}
		out := Composite{ID: c.ID, Fields: make(map[string]any, len(c.Fields))}
		for _, f := range c.Fields {
			d, err := f.Value.decode()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out.Fields[f.Name] = d
		}
		return out, nil
	default:
		// Path, Type, Capability and friends are not needed by the bridge.
		return string(v.Value), nil
	}
}

// encodeArgument renders a script argument as base64 JSON-Cadence.
func encodeArgument(typ, value string) string {
	raw, _ := json.Marshal(map[string]string{"type": typ, "value": value})
	return base64.StdEncoding.EncodeToString(raw)
}

func fieldUint64(fields map[string]any, name string) (uint64, error) {
	switch v := fields[name].(type) {
	case uint64:
		return v, nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("field %s is negative", name)
		}
		return uint64(v), nil
	case decimal.Decimal:
		return uint64(v.IntPart()), nil
	case nil:
		return 0, fmt.Errorf("field %s missing", name)
	default:
		return 0, fmt.Errorf("field %s has type %T", name, v)
	}
}

func fieldDecimal(fields map[string]any, name string) (decimal.Decimal, error) {
	switch v := fields[name].(type) {
	case decimal.Decimal:
		return v, nil
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case nil:
		return decimal.Zero, fmt.Errorf("field %s missing", name)
	default:
		return decimal.Zero, fmt.Errorf("field %s has type %T", name, v)
	}
}

func fieldString(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

func fieldBool(fields map[string]any, name string) bool {
	b, _ := fields[name].(bool)
	return b
}

// secondsToTime converts a UFix64 unix timestamp.
func secondsToTime(d decimal.Decimal) time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	sec := d.IntPart()
	nanos := d.Sub(decimal.NewFromInt(sec)).Shift(9).IntPart()
	return time.Unix(sec, nanos)
}

func secondsToDuration(d decimal.Decimal) time.Duration {
	return time.Duration(d.Shift(9).IntPart())
}

func normalizeHex(addr string) string {
	return "0x" + strings.TrimPrefix(strings.ToLower(addr), "0x")
}
