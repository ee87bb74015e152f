package protocol

import (
	"fmt"
	"strings"
)

// NoteKind classifies a line received from the venue.
type NoteKind int

const (
	NoteUnknown NoteKind = iota
	NoteFilled           // "Order filled!"
	NotePartial          // "Order filled [filled/size]"
	NoteExecution        // "Order filled [qty/size] at price"
	NoteUnfilled         // "Unfilled [remainder/size]"
	NoteError            // "Error: reason"
)

func (k NoteKind) String() string {
	switch k {
	case NoteFilled:
		return "filled"
	case NotePartial:
		return "partial"
	case NoteExecution:
		return "execution"
	case NoteUnfilled:
		return "unfilled"
	case NoteError:
		return "error"
	default:
		return "unknown"
	}
}

// Note is a decoded notification line. Qty and Size are the two bracketed numbers;
// Price is set only for executions.
type Note struct {
	Kind   NoteKind
	Qty    int64
	Size   int64
	Price  int64
	Reason string
}

// ParseNote decodes a notification line. Unrecognized lines yield NoteUnknown.
func ParseNote(line string) Note {
	line = strings.TrimSpace(line)
	switch {
	case line == "Order filled!":
		return Note{Kind: NoteFilled}
	case strings.HasPrefix(line, "Error: "):
		return Note{Kind: NoteError, Reason: strings.TrimPrefix(line, "Error: ")}
	}

	var n Note
	if _, err := fmt.Sscanf(line, "Order filled [%d/%d] at %d", &n.Qty, &n.Size, &n.Price); err == nil {
		n.Kind = NoteExecution
		return n
	}
	if _, err := fmt.Sscanf(line, "Order filled [%d/%d]", &n.Qty, &n.Size); err == nil && strings.HasSuffix(line, "]") {
		return Note{Kind: NotePartial, Qty: n.Qty, Size: n.Size}
	}
	if _, err := fmt.Sscanf(line, "Unfilled [%d/%d]", &n.Qty, &n.Size); err == nil {
		return Note{Kind: NoteUnfilled, Qty: n.Qty, Size: n.Size}
	}
	return Note{Kind: NoteUnknown, Reason: line}
}
