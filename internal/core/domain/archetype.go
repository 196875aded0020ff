package domain

// =============================================================================
// Archetype
// =============================================================================

// Archetype is the classified runtime stack of a source tree.
type Archetype string

const (
	ArchetypePython Archetype = "python"
	ArchetypeReact  Archetype = "react"
	ArchetypeNext   Archetype = "next"
	ArchetypeNode   Archetype = "node"
)

// conventionalPorts maps each archetype to the port its recipe exposes.
var conventionalPorts = map[Archetype]int{
	ArchetypePython: 8000,
	ArchetypeReact:  80,
	ArchetypeNext:   3000,
	ArchetypeNode:   3000,
}

// Port returns the conventional listen port for the archetype.
// Unknown archetypes fall back to the node port.
func (a Archetype) Port() int {
	if p, ok := conventionalPorts[a]; ok {
		return p
	}
	return conventionalPorts[ArchetypeNode]
}

// Valid reports whether a is one of the known archetypes.
func (a Archetype) Valid() bool {
	_, ok := conventionalPorts[a]
	return ok
}

func (a Archetype) String() string {
	return string(a)
}
