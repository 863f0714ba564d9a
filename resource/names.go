package resource

import "strings"

const (
	selfWireName     = "self"
	selfInternalName = "_self_"
	typeWireName     = "$type"
	typeInternalName = "_type_"
)

// InternalName maps a field name as it appears on the wire to the name it is stored under.
// "self" and "$type" are renamed. A wire name that already looks like one of their internal
// names, such as "_self_", gets one more leading underscore so that it cannot collide; every
// other name maps to itself.
func InternalName(wire string) string {
	switch wire {
	case selfWireName:
		return selfInternalName
	case typeWireName:
		return typeInternalName
	}
	if reservedForm(wire) {
		return "_" + wire
	}
	return wire
}

// WireName is the inverse of InternalName.
func WireName(internal string) string {
	switch internal {
	case selfInternalName:
		return selfWireName
	case typeInternalName:
		return typeWireName
	}
	if strings.HasPrefix(internal, "__") && reservedForm(internal) {
		return internal[1:]
	}
	return internal
}

// reservedForm reports whether name is one or more underscores followed by "self_" or "type_".
func reservedForm(name string) bool {
	rest := strings.TrimLeft(name, "_")
	return len(rest) < len(name) && (rest == "self_" || rest == "type_")
}
