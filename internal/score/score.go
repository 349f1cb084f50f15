package score

import "fmt"

// Grade is an ordered health grade for one build activity.
// The zero value None means "never computed" and is excluded from
// aggregation.
type Grade int8

const (
	None Grade = iota
	D          // worst
	C
	B
	A // best
)

// String returns the letter form of the grade, or "" for None.
func (g Grade) String() string {
	switch g {
	case D:
		return "D"
	case C:
		return "C"
	case B:
		return "B"
	case A:
		return "A"
	}
	return ""
}

// Valid reports whether g is one of the four defined grades.
func (g Grade) Valid() bool {
	return g >= D && g <= A
}

// MarshalText encodes g as its letter form so grades serialize as "A".."D"
// in JSON and in the persistence layer. None encodes as the empty string.
func (g Grade) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText decodes a letter form produced by MarshalText.
func (g *Grade) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Parse converts a letter ("A".."D", case-sensitive) to a Grade.
// The empty string parses to None.
func Parse(s string) (Grade, error) {
	switch s {
	case "":
		return None, nil
	case "D":
		return D, nil
	case "C":
		return C, nil
	case "B":
		return B, nil
	case "A":
		return A, nil
	}
	return None, fmt.Errorf("score: unknown grade %q", s)
}

// FromRating converts a SonarQube-style rating value ("1.0" = best through
// "4.0"+ = worst) to a Grade. Unknown or empty values map to None.
func FromRating(value string) Grade {
	switch value {
	case "1.0":
		return A
	case "2.0":
		return B
	case "3.0":
		return C
	case "4.0", "5.0":
		return D
	}
	return None
}

// Min returns the worst of the given grades, ignoring None values.
// Min of no defined grades is None.
func Min(grades ...Grade) Grade {
	r := None
	for _, g := range grades {
		if !g.Valid() {
			continue
		}
		if r == None || g < r {
			r = g
		}
	}
	return r
}

// Aggregate combines an activity's sub-scores into its overall grade.
// A failed quality gate forces D regardless of sub-scores; otherwise the
// result is the worst contributing sub-score. The rule is idempotent and
// order-independent.
func Aggregate(gatePassed bool, subs ...Grade) Grade {
	if !gatePassed {
		return D
	}
	return Min(subs...)
}
