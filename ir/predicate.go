package ir

import "fmt"

// Predicate is a comparison predicate for icmp and fcmp.
type Predicate uint8

// Floating-point predicates. O* are ordered (false when either operand is NaN),
// U* are unordered (true when either operand is NaN).
const (
	PredNone Predicate = iota

	FCmpFalse
	FCmpOEQ
	FCmpOGT
	FCmpOGE
	FCmpOLT
	FCmpOLE
	FCmpONE
	FCmpORD
	FCmpUNO
	FCmpUEQ
	FCmpUGT
	FCmpUGE
	FCmpULT
	FCmpULE
	FCmpUNE
	FCmpTrue

	ICmpEQ
	ICmpNE
	ICmpUGT
	ICmpUGE
	ICmpULT
	ICmpULE
	ICmpSGT
	ICmpSGE
	ICmpSLT
	ICmpSLE

	numPredicates
)

var predicateNames = [numPredicates]string{
	PredNone:  "none",
	FCmpFalse: "false",
	FCmpOEQ:   "oeq",
	FCmpOGT:   "ogt",
	FCmpOGE:   "oge",
	FCmpOLT:   "olt",
	FCmpOLE:   "ole",
	FCmpONE:   "one",
	FCmpORD:   "ord",
	FCmpUNO:   "uno",
	FCmpUEQ:   "ueq",
	FCmpUGT:   "ugt",
	FCmpUGE:   "uge",
	FCmpULT:   "ult",
	FCmpULE:   "ule",
	FCmpUNE:   "une",
	FCmpTrue:  "true",
	ICmpEQ:    "eq",
	ICmpNE:    "ne",
	ICmpUGT:   "ugt",
	ICmpUGE:   "uge",
	ICmpULT:   "ult",
	ICmpULE:   "ule",
	ICmpSGT:   "sgt",
	ICmpSGE:   "sge",
	ICmpSLT:   "slt",
	ICmpSLE:   "sle",
}

func (p Predicate) String() string {
	if p < numPredicates {
		return predicateNames[p]
	}
	return fmt.Sprintf("Predicate(%d)", p)
}

// IsInt returns true for icmp predicates.
func (p Predicate) IsInt() bool {
	return p >= ICmpEQ && p <= ICmpSLE
}

// IsFloat returns true for fcmp predicates.
func (p Predicate) IsFloat() bool {
	return p >= FCmpFalse && p <= FCmpTrue
}

// Inverse returns the logical complement of a predicate, so that
// cmp(Inverse(p), a, b) == !cmp(p, a, b) for all operands including NaN.
func (p Predicate) Inverse() Predicate {
	switch {
	case p.IsFloat():
		// The fcmp encoding mirrors LLVM: predicate i and 15-i are
		// complements (OEQ <-> UNE, ORD <-> UNO, FALSE <-> TRUE, ...).
		return FCmpFalse + (FCmpTrue - p)
	case p.IsInt():
		switch p {
		case ICmpEQ:
			return ICmpNE
		case ICmpNE:
			return ICmpEQ
		case ICmpUGT:
			return ICmpULE
		case ICmpUGE:
			return ICmpULT
		case ICmpULT:
			return ICmpUGE
		case ICmpULE:
			return ICmpUGT
		case ICmpSGT:
			return ICmpSLE
		case ICmpSGE:
			return ICmpSLT
		case ICmpSLT:
			return ICmpSGE
		case ICmpSLE:
			return ICmpSGT
		}
	}
	return PredNone
}

// ParsePredicate resolves a predicate mnemonic in the context of op, which
// must be OpICmp or OpFCmp. The names "ugt", "ult" etc. exist for both.
func ParsePredicate(op Op, name string) (Predicate, error) {
	var lo, hi Predicate
	switch op {
	case OpICmp:
		lo, hi = ICmpEQ, ICmpSLE
	case OpFCmp:
		lo, hi = FCmpFalse, FCmpTrue
	default:
		return PredNone, fmt.Errorf("opcode %s takes no predicate", op)
	}
	for p := lo; p <= hi; p++ {
		if predicateNames[p] == name {
			return p, nil
		}
	}
	return PredNone, fmt.Errorf("unknown %s predicate %q", op, name)
}
