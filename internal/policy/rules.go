package policy

import (
	"regexp"
	"unicode"
)

// Identity questions are curiosity about who is on the other side. On their own they never
// escalate.
var identityQuestions = []string{
	"com quem eu falo", "com quem falo", "com quem estou falando", "com quem to falando",
	"quem é você", "quem é vc", "quem está falando", "quem ta falando", "quem fala",
	"é você mesmo", "é você mesma", "é vc mesmo", "é vc mesma", "é realmente você",
	"who am i talking to", "is this really you", "who is this",
}

// Monetary context words turn a bare number such as 19,90 into a price.
var monetaryContext = []string{
	"valor", "valores", "custa", "custam", "custo", "custar", "preço", "preços", "parcela",
	"parcelas", "parcelado", "parcelamento", "mensalidade", "pagar", "pagamento", "desconto",
	"taxa", "cobrança", "cobrar", "boleto", "pix", "reembolso",
	"cost", "costs", "price", "installment", "installments", "fee",
}

// Sales vocabulary blocks regardless of amounts.
var salesVocabulary = []string{
	"checkout", "finalizar compra", "finalize sua compra", "link de pagamento", "pague agora",
	"compre agora", "clique aqui", "garanta já", "garanta sua vaga", "oferta imperdível",
	"cartão de crédito", "chave pix", "últimas vagas", "buy now", "click here",
}

// DefaultFallbacks are used when a persona defines no safe responses.
var DefaultFallbacks = []string{
	"Entendi! Me conta um pouco mais?",
	"Que bom falar com você. Pode me explicar melhor?",
	"Certo, estou por aqui. O que mais você gostaria de saber?",
}

// DefaultHandoffMessage acknowledges an escalation when the persona defines none.
const DefaultHandoffMessage = "Entendi. Vou pedir para alguém da equipe continuar com você por aqui, tudo bem?"

var (
	linkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.\-]*://\S+`),
		regexp.MustCompile(`(?i)\bwww\.\S+`),
		regexp.MustCompile(`(?i)\b[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.(?:com|net|org|io|me|app|site|shop|store|info|biz|link|online|xyz|br)(?:\.br)?/\S*`),
		regexp.MustCompile(`(?i)\b(?:bit\.ly|tinyurl\.com|wa\.me|t\.me|t\.co|goo\.gl|cutt\.ly|is\.gd|rb\.gy|linktr\.ee|encurtador\.com\.br)\b`),
	}

	currencyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:r\$|us\$|u\$|\$|€|£)\s?\d`),
		regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)*\s?(?:reais|real|dólares|dolares|euros|brl|usd|contos)\b`),
	}

	nakedAmount = regexp.MustCompile(`\b\d+[.,]\d+\b`)

	// Matched against normalized (lower-cased, accent-folded, punctuation-free) text.
	selfDisclosure = regexp.MustCompile(`\b(?:` +
		`sou (?:um|uma) (?:bot|robo|chatbot|ia|inteligencia artificial|programa|assistente virtual|maquina|modelo de linguagem)` +
		`|(?:fui|sou|estou) programad[oa]` +
		`|i am (?:a|an) (?:bot|ai|program|robot|chatbot|language model|virtual assistant)` +
		`|i m (?:a|an) (?:bot|ai|program|robot|chatbot|language model|virtual assistant)` +
		`|i was programmed` +
		`|as an ai` +
		`|como uma ia` +
		`)\b`)

	// Transport markers for voice notes, e.g. "[áudio]" or "<audio omitted>".
	audioMarker = regexp.MustCompile(`(?i)^\s*[\[<(]\s*(?:áudio|audio|voice|ptt)[^\]>)]*[\]>)]\s*$`)
)

// ContainsSelfDisclosure reports whether text states that the speaker is automated.
func ContainsSelfDisclosure(text string) bool {
	return selfDisclosure.MatchString(normalize(text).text)
}

// ContainsLink reports whether text contains a URL-like pattern.
func ContainsLink(text string) bool {
	return firstMatch(linkPatterns, text) != ""
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// isEmojiOnly reports whether s holds at least one emoji and nothing but emoji, emoji
// modifiers and whitespace.
func isEmojiOnly(s string) bool {
	seen := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
		case r == 0x200D, r == 0xFE0E, r == 0xFE0F, r == 0x20E3:
			// joiner, variation selectors, keycap
		case r >= 0x1F3FB && r <= 0x1F3FF:
			// skin tone modifiers
		case unicode.Is(unicode.So, r),
			r >= 0x1F000 && r <= 0x1FAFF,
			r >= 0x2600 && r <= 0x27BF,
			r >= 0x1F1E6 && r <= 0x1F1FF:
			seen = true
		default:
			return false
		}
	}
	return seen
}
