package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	posInf = math.Inf(1)
	negInf = math.Inf(-1)
)

// Render serializes p back into the surface grammar, such that
// Parse(Render(p), nil) reproduces a structurally equal tree.
func Render(p *Predicate) string {
	if p == nil || p.Kind == KindMatchAll {
		return "*"
	}
	return renderExpr(p)
}

func renderExpr(p *Predicate) string {
	switch p.Kind {
	case KindOr:
		return renderAtom(p.Left) + "|" + renderAtom(p.Right)
	case KindAnd:
		return renderAtom(p.Left) + " " + renderAtom(p.Right)
	case KindNegate:
		return "-" + renderAtom(p.Inner)
	default:
		return renderAtom(p)
	}
}

// renderAtom wraps composite children in parens so precedence survives
// a round trip through Parse.
func renderAtom(p *Predicate) string {
	switch p.Kind {
	case KindAnd, KindOr:
		return "(" + renderExpr(p) + ")"
	case KindNegate:
		return "-" + renderAtom(p.Inner)
	case KindTag:
		if p.RawTags != "" {
			return "@" + p.Field + ":" + p.RawTags
		}
		return fmt.Sprintf("@%s:{%s}", p.Field, strings.Join(p.Tags, "|"))
	case KindNumeric:
		return fmt.Sprintf("@%s:[%s %s]", p.Field, renderBound(p.Lo, p.LoInc, p.LoInf, true), renderBound(p.Hi, p.HiInc, p.HiInf, false))
	default:
		return "*"
	}
}

func renderBound(v float64, inclusive, isInf, lower bool) string {
	var lit string
	switch {
	case isInf && v < 0:
		lit = "-inf"
	case isInf:
		lit = "+inf"
	default:
		lit = strconv.FormatFloat(v, 'g', -1, 64)
	}
	if !inclusive {
		return "(" + lit
	}
	return lit
}
