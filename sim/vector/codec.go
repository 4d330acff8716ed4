package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/legisim/legisim/sim/periods"
)

// MarshalBinary encodes arr as a little-endian blob: the dtype name, the
// element count, then the elements. The format is process-local.
func MarshalBinary(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, string(arr.DType()))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(arr.Len()))
	switch a := arr.(type) {
	case Floats:
		for _, v := range a {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
		}
	case Ints:
		_ = binary.Write(&buf, binary.LittleEndian, []int64(a))
	case Bools:
		_ = binary.Write(&buf, binary.LittleEndian, []bool(a))
	case Strings:
		for _, v := range a {
			writeString(&buf, v)
		}
	case Dates:
		for _, v := range a {
			_ = binary.Write(&buf, binary.LittleEndian, [3]int32{int32(v.Year), int32(v.Month), int32(v.Day)})
		}
	case EnumArray:
		_ = binary.Write(&buf, binary.LittleEndian, a.Codes)
	default:
		return nil, fmt.Errorf("encode %T: unsupported array type", arr)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a blob written by MarshalBinary. enum is attached to
// decoded enum arrays.
func UnmarshalBinary(data []byte, enum *EnumType) (Array, error) {
	r := bytes.NewReader(data)
	name, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("decode length: %w", err)
	}
	var arr Array
	switch DType(name) {
	case Float:
		out := make(Floats, n)
		for i := range out {
			var bits uint64
			if err = binary.Read(r, binary.LittleEndian, &bits); err != nil {
				break
			}
			out[i] = math.Float64frombits(bits)
		}
		arr = out
	case Int:
		out := make([]int64, n)
		err = binary.Read(r, binary.LittleEndian, out)
		arr = Ints(out)
	case Bool:
		out := make([]bool, n)
		err = binary.Read(r, binary.LittleEndian, out)
		arr = Bools(out)
	case String:
		out := make(Strings, n)
		for i := range out {
			if out[i], err = readString(r); err != nil {
				break
			}
		}
		arr = out
	case Date:
		out := make(Dates, n)
		for i := range out {
			var ymd [3]int32
			if err = binary.Read(r, binary.LittleEndian, &ymd); err != nil {
				break
			}
			out[i] = periods.Instant{Year: int(ymd[0]), Month: int(ymd[1]), Day: int(ymd[2])}
		}
		arr = out
	case Enum:
		codes := make([]int16, n)
		err = binary.Read(r, binary.LittleEndian, codes)
		arr = EnumArray{Enum: enum, Codes: codes}
	default:
		return nil, fmt.Errorf("decode: unknown dtype %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s values: %w", name, err)
	}
	return arr, nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
