package funcgraph

// Kind identifies which record shape a trace-cmd report line has.
type Kind int

const (
	// KindUnknown is any line matching none of the known shapes.
	KindUnknown Kind = iota
	// KindEntryOpen is a funcgraph_entry that opens a nested scope: "foo() {".
	KindEntryOpen
	// KindEntryLeaf is a funcgraph_entry with its exit folded in: "0.349 us | foo();".
	KindEntryLeaf
	// KindExit is a funcgraph_exit closing the innermost open scope: "1.170 us | }".
	KindExit
	// KindIgnorable is a header line carrying no call information.
	KindIgnorable
)

func (k Kind) String() string {
	switch k {
	case KindEntryOpen:
		return "entry-open"
	case KindEntryLeaf:
		return "entry-leaf"
	case KindExit:
		return "exit"
	case KindIgnorable:
		return "ignorable"
	default:
		return "unknown"
	}
}

// Line is a classified report line.
type Line struct {
	Kind    Kind
	Name    string  // function name, set for KindEntryOpen and KindEntryLeaf
	Latency float64 // microseconds, set for KindEntryLeaf and KindExit
	Raw     string  // the line as classified, without its line terminator
}

// IsCall reports whether the line carries call information.
func (l Line) IsCall() bool {
	return l.Kind == KindEntryOpen || l.Kind == KindEntryLeaf || l.Kind == KindExit
}
