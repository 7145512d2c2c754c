package helpers

// Size display modes accepted by drops.size_display.
const (
	SizeTotal   = "total"
	SizePerItem = "per-item"
	SizeHidden  = "hidden"
)

// StdinArg is the drop argument that reads a payload from standard input.
const StdinArg = "-"
