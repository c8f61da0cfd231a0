package counter

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Rendering is the output of Format.
type Rendering struct {
	Value string
	// Unrendered lists components that are valid types but have no renderer.
	Unrendered []ComponentType
	// NotNumeric is set when a NUMERIC template produced a value that does not
	// parse as an integer; Value is then returned as assembled.
	NotNumeric bool
}

// PadSequence renders value left-padded with zeros to maxDigits.
// ok is false when the rendering is longer than maxDigits.
func PadSequence(value int64, maxDigits int) (s string, ok bool) {
	if maxDigits <= 0 {
		maxDigits = 1
	}
	s = fmt.Sprintf("%0*d", maxDigits, value)
	return s, len(s) <= maxDigits
}

// Format assembles the document number from the template components.
// seq is the already padded value returned by the SequenceStore.
func Format(seq string, def Definition, date time.Time, scope, complement string) Rendering {
	var (
		b   strings.Builder
		out Rendering
	)

	n := def.NumberOfComponents
	if n > len(def.Components) {
		n = len(def.Components)
	}

	for i := 0; i < n; i++ {
		c := def.Components[i]
		if c.Type == ComponentNone {
			break
		}

		switch c.Type {
		case ComponentConstant:
			b.WriteString(c.Constant)
		case ComponentYear:
			b.WriteString(renderYear(date, c.Length))
		case ComponentMonth:
			b.WriteString(renderMonth(date, c.Length))
		case ComponentWeek:
			_, week := date.ISOWeek()
			fmt.Fprintf(&b, "%02d", week)
		case ComponentDay:
			b.WriteString(renderDay(date, c.Length))
		case ComponentCompany, ComponentSite:
			b.WriteString(renderScope(scope, c.Length, def.ChronologicalControl))
		case ComponentSequenceNumber:
			b.WriteString(seq)
		case ComponentComplement:
			b.WriteString(truncate(complement, c.Length))
		case ComponentNoComplement:
		case ComponentFiscalYear, ComponentPeriod, ComponentFormula:
			out.Unrendered = append(out.Unrendered, c.Type)
		default:
			out.Unrendered = append(out.Unrendered, c.Type)
		}
	}

	out.Value = b.String()
	if def.SequenceType == SequenceNumeric {
		if num, ok := new(big.Int).SetString(out.Value, 10); ok {
			out.Value = num.String()
		} else {
			out.NotNumeric = true
		}
	}
	return out
}

func renderYear(date time.Time, length int) string {
	switch length {
	case 1:
		return fmt.Sprintf("%d", ResolvePeriod(ResetDecade, date))
	case 2:
		return fmt.Sprintf("%02d", ResolvePeriod(ResetAnnual, date))
	case 4:
		return fmt.Sprintf("%04d", date.Year())
	default:
		return ""
	}
}

func renderMonth(date time.Time, length int) string {
	switch length {
	case 2:
		return fmt.Sprintf("%02d", int(date.Month()))
	case 3:
		return strings.ToUpper(date.Month().String()[:3])
	default:
		return ""
	}
}

func renderDay(date time.Time, length int) string {
	switch length {
	case 1:
		return fmt.Sprintf("%01d", int(date.Weekday()))
	case 2:
		return fmt.Sprintf("%02d", date.Day())
	case 3:
		return fmt.Sprintf("%03d", date.YearDay())
	default:
		return ""
	}
}

func renderScope(scope string, length, chronological int) string {
	if chronological == ChronologicalPadded {
		if pad := length - len([]rune(scope)); pad > 0 {
			return scope + strings.Repeat("_", pad)
		}
	}
	return truncate(scope, length)
}

// truncate cuts s to length characters; length <= 0 keeps s verbatim.
func truncate(s string, length int) string {
	if length <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length])
}
