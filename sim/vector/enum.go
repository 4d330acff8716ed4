package vector

import "fmt"

// EnumType is a closed set of named items stored as int16 codes in declaration
// order.
type EnumType struct {
	Key    string
	items  []string
	codes  map[string]int16
	Labels map[string]string
}

// NewEnum declares an enum. Item names must be unique.
func NewEnum(key string, items ...string) *EnumType {
	e := &EnumType{Key: key, items: items, codes: make(map[string]int16, len(items))}
	for i, name := range items {
		if _, dup := e.codes[name]; dup {
			panic(fmt.Sprintf("enum %s: duplicated item %q", key, name))
		}
		e.codes[name] = int16(i)
	}
	return e
}

// Items returns the item names in declaration order.
func (e *EnumType) Items() []string { return append([]string(nil), e.items...) }

// Code returns the code of the named item.
func (e *EnumType) Code(name string) (int16, bool) {
	c, ok := e.codes[name]
	return c, ok
}

// Name returns the item name of code, or "" for an unknown code.
func (e *EnumType) Name(code int16) string {
	if !e.valid(code) {
		return ""
	}
	return e.items[code]
}

func (e *EnumType) valid(code int16) bool { return code >= 0 && int(code) < len(e.items) }

// Encode converts item names into an EnumArray.
func (e *EnumType) Encode(names []string) (EnumArray, error) {
	out := EnumArray{Enum: e, Codes: make([]int16, len(names))}
	for i, name := range names {
		code, ok := e.codes[name]
		if !ok {
			return EnumArray{}, fmt.Errorf("%w: %q is not a member of enum %s (possible values: %v)",
				ErrTypeMismatch, name, e.Key, e.items)
		}
		out.Codes[i] = code
	}
	return out, nil
}

// Decode converts codes back into item names.
func (e *EnumType) Decode(a EnumArray) []string {
	out := make([]string, len(a.Codes))
	for i, c := range a.Codes {
		out[i] = e.Name(c)
	}
	return out
}

// Is returns the mask of elements equal to the named item.
func (a EnumArray) Is(name string) Bools {
	out := make(Bools, len(a.Codes))
	code, ok := a.Enum.Code(name)
	if !ok {
		return out
	}
	for i, c := range a.Codes {
		out[i] = c == code
	}
	return out
}
