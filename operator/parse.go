package operator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned for operator strings that cannot be parsed.
var ErrSyntax = errors.New("operator syntax error")

// TermSpec is the serialisable form of one term: a real coefficient times a
// product of factors written as "c+ block inner", "c block inner" or
// "n block inner".
type TermSpec struct {
	Coef float64  `yaml:"coef" json:"coef"`
	Ops  []string `yaml:"ops" json:"ops"`
}

// Parse builds the sum of the given terms.
func Parse(terms []TermSpec) (Expr, error) {
	out := make([]Expr, 0, len(terms))
	for i, t := range terms {
		e := Const(1)
		for _, s := range t.Ops {
			f, err := parseFactor(s)
			if err != nil {
				return Expr{}, fmt.Errorf("term %d: %w", i, err)
			}
			e = e.Mul(f)
		}
		out = append(out, e.Scale(t.Coef))
	}
	return Sum(out...), nil
}

func parseFactor(s string) (Expr, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Expr{}, fmt.Errorf("%w: %q: want \"<c+|c|n> block inner\"", ErrSyntax, s)
	}
	block, inner := fields[1], fields[2]
	switch fields[0] {
	case "c+", "cdag":
		return CDag(block, inner), nil
	case "c":
		return C(block, inner), nil
	case "n":
		return N(block, inner), nil
	}
	return Expr{}, fmt.Errorf("%w: %q: unknown operator %q", ErrSyntax, s, fields[0])
}

// ParseIndex parses "block,inner" as written by Index.String.
func ParseIndex(s string) (Index, error) {
	block, inner, ok := strings.Cut(s, ",")
	if !ok || block == "" || inner == "" {
		return Index{}, fmt.Errorf("%w: index %q: want \"block,inner\"", ErrSyntax, s)
	}
	return Index{Block: strings.TrimSpace(block), Inner: strings.TrimSpace(inner)}, nil
}
