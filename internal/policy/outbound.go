package policy

import (
	"fmt"
	"strings"
)

// Outbound reasons.
const (
	ReasonEmptyReply      = "EMPTY_REPLY"
	ReasonForbiddenTerm   = "FORBIDDEN_TERM"
	ReasonLinkNotAllowed  = "LINK_NOT_ALLOWED"
	ReasonPriceDisclosure = "PRICE_DISCLOSURE"
	ReasonSalesVocabulary = "SALES_VOCABULARY"
	ReasonSelfDisclosure  = "SELF_DISCLOSURE"
	ReasonNicheVocabulary = "NICHE_VOCABULARY"
)

// OutboundResult is the outcome of ValidateOutbound.
type OutboundResult struct {
	Allowed   bool     `json:"allowed"`
	FinalText string   `json:"final_text"`
	Reason    string   `json:"reason"`
	Matched   string   `json:"matched,omitempty"`
	Truncated bool     `json:"truncated"`
	Trace     []string `json:"trace"`
}

type outboundRule struct {
	name string
	// check returns the violation reason and the offending fragment, or "" when the rule passes.
	check func(e *Evaluator, text string, n *normalized) (reason, matched string)
}

// outboundRules run after truncation, top to bottom; the first violation stops the pipeline.
var outboundRules = []outboundRule{
	{"forbidden_terms", func(e *Evaluator, _ string, n *normalized) (string, string) {
		if term, ok := e.forbidden.match(n); ok {
			return ReasonForbiddenTerm, term
		}
		return "", ""
	}},
	{"links", func(e *Evaluator, text string, _ *normalized) (string, string) {
		if e.policy.Compliance.AllowLinks {
			return "", ""
		}
		if m := firstMatch(linkPatterns, text); m != "" {
			return ReasonLinkNotAllowed, m
		}
		return "", ""
	}},
	{"price", func(e *Evaluator, text string, n *normalized) (string, string) {
		if e.policy.Compliance.AllowPrice {
			return "", ""
		}
		if m := firstMatch(currencyPatterns, text); m != "" {
			return ReasonPriceDisclosure, m
		}
		if amount := nakedAmount.FindString(text); amount != "" {
			if word, ok := e.monetaryContext.match(n); ok {
				return ReasonPriceDisclosure, fmt.Sprintf("%s (%s)", amount, word)
			}
		}
		if term, ok := e.sales.match(n); ok {
			return ReasonSalesVocabulary, term
		}
		return "", ""
	}},
	{"self_disclosure", func(_ *Evaluator, _ string, n *normalized) (string, string) {
		if m := selfDisclosure.FindString(n.text); m != "" {
			return ReasonSelfDisclosure, m
		}
		return "", ""
	}},
	{"niche_vocabulary", func(e *Evaluator, _ string, n *normalized) (string, string) {
		if term, ok := e.nicheExclusions.match(n); ok {
			return ReasonNicheVocabulary, term
		}
		return "", ""
	}},
}

// ValidateOutbound truncates a composed reply and checks it against the content rules. A
// reply that violates a rule is replaced by a safe fallback.
func (e *Evaluator) ValidateOutbound(reply string) OutboundResult {
	res := OutboundResult{Trace: make([]string, 0, len(outboundRules)+1)}

	if strings.TrimSpace(reply) == "" {
		res.FinalText = e.Fallback()
		res.Reason = ReasonEmptyReply
		res.Trace = append(res.Trace, "empty:fired")
		return res
	}

	text := Truncate(reply, e.policy.MaxCharsPerMessage)
	if text != reply {
		res.Truncated = true
		res.Trace = append(res.Trace, "truncate:applied")
	} else {
		res.Trace = append(res.Trace, "truncate:pass")
	}

	n := normalize(text)
	for _, rule := range outboundRules {
		reason, matched := rule.check(e, text, n)
		if reason == "" {
			res.Trace = append(res.Trace, rule.name+":pass")
			continue
		}
		res.Trace = append(res.Trace, rule.name+":fired")
		res.FinalText = e.Fallback()
		res.Reason = reason
		res.Matched = matched
		return res
	}

	res.Allowed = true
	res.FinalText = text
	res.Reason = ReasonOK
	return res
}
