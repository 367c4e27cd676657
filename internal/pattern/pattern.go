// Package pattern holds the step grid of the beat maker and its compact
// share-link encoding.
package pattern

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Steps is the fixed length of every pad row.
const Steps = 16

// DefaultPads is the pad count of the stock kit.
const DefaultPads = 8

// Separator joins the per-pad codes of an encoded pattern.
const Separator = "-"

// QueryKey is the share-link query parameter.
const QueryKey = "beat"

var (
	ErrInvalid = errors.New("invalid pattern")
	ErrBadCell = errors.New("pad or step out of range")
)

// Row is one pad's steps.
type Row [Steps]bool

// Pattern is a grid of rows in stable pad order. Every row always has
// exactly Steps cells.
type Pattern struct {
	rows []Row
}

// New returns an all-off pattern with pads rows.
func New(pads int) Pattern {
	return Pattern{rows: make([]Row, max(pads, 0))}
}

// Pads returns the number of rows.
func (p Pattern) Pads() int { return len(p.rows) }

// Row returns a copy of pad's steps.
func (p Pattern) Row(pad int) (Row, error) {
	if pad < 0 || pad >= len(p.rows) {
		return Row{}, ErrBadCell
	}
	return p.rows[pad], nil
}

// Get reports whether pad fires on step.
func (p Pattern) Get(pad, step int) bool {
	if pad < 0 || pad >= len(p.rows) || step < 0 || step >= Steps {
		return false
	}
	return p.rows[pad][step]
}

// Set writes one cell.
func (p Pattern) Set(pad, step int, on bool) error {
	if pad < 0 || pad >= len(p.rows) || step < 0 || step >= Steps {
		return ErrBadCell
	}
	p.rows[pad][step] = on
	return nil
}

// Toggle flips one cell and returns its new value.
func (p Pattern) Toggle(pad, step int) (bool, error) {
	if pad < 0 || pad >= len(p.rows) || step < 0 || step >= Steps {
		return false, ErrBadCell
	}
	p.rows[pad][step] = !p.rows[pad][step]
	return p.rows[pad][step], nil
}

// Clear turns every cell off.
func (p Pattern) Clear() {
	clear(p.rows)
}

// Clone returns an independent copy.
func (p Pattern) Clone() Pattern {
	rows := make([]Row, len(p.rows))
	copy(rows, p.rows)
	return Pattern{rows: rows}
}

// Equal reports whether both patterns have the same shape and cells.
func (p Pattern) Equal(o Pattern) bool {
	if len(p.rows) != len(o.rows) {
		return false
	}
	for i := range p.rows {
		if p.rows[i] != o.rows[i] {
			return false
		}
	}
	return true
}

// Active returns the pads that fire on step, in pad order.
func (p Pattern) Active(step int) []int {
	var pads []int
	for i, r := range p.rows {
		if step >= 0 && step < Steps && r[step] {
			pads = append(pads, i)
		}
	}
	return pads
}

// Grid returns the cells as nested slices, for JSON.
func (p Pattern) Grid() [][]bool {
	out := make([][]bool, len(p.rows))
	for i, r := range p.rows {
		out[i] = append([]bool(nil), r[:]...)
	}
	return out
}

// Encode packs each row into a 16-bit number (step 0 is the most significant
// bit), writes it in base 36 and joins the rows with Separator.
func Encode(p Pattern) string {
	parts := make([]string, len(p.rows))
	for i, r := range p.rows {
		var b strings.Builder
		for _, on := range r {
			if on {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
		v, _ := strconv.ParseUint(b.String(), 2, Steps)
		parts[i] = strconv.FormatUint(v, 36)
	}
	return strings.Join(parts, Separator)
}

// Decode reverses Encode. The part count must equal pads; nothing is
// decoded from a malformed string.
func Decode(s string, pads int) (Pattern, error) {
	parts := strings.Split(s, Separator)
	if len(parts) != pads {
		return Pattern{}, fmt.Errorf("%w: %d parts, want %d", ErrInvalid, len(parts), pads)
	}
	p := New(pads)
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.ToLower(part), 36, Steps)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: pad %d: %v", ErrInvalid, i, err)
		}
		bits := fmt.Sprintf("%0*b", Steps, v)
		for step, c := range bits {
			p.rows[i][step] = c == '1'
		}
	}
	return p, nil
}

// ShareQuery returns the query string that carries p.
func ShareQuery(p Pattern) string {
	v := url.Values{}
	v.Set(QueryKey, Encode(p))
	return v.Encode()
}

// FromQuery reads the beat parameter. A missing or corrupt value yields an
// empty pattern and false.
func FromQuery(q url.Values, pads int) (Pattern, bool) {
	s := q.Get(QueryKey)
	if s == "" {
		return New(pads), false
	}
	p, err := Decode(s, pads)
	if err != nil {
		return New(pads), false
	}
	return p, true
}

// FromURL is FromQuery for a full share link.
func FromURL(raw string, pads int) (Pattern, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return New(pads), false
	}
	return FromQuery(u.Query(), pads)
}
