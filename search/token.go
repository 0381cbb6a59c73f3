// Package search implements the boolean mini-language used for row
// filtering and IOC rules: a lexer producing a token stream (this file), a
// shunting-yard RPN converter (rpn.go), and a vectorised mask evaluator
// (mask.go).
package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TokenKind tags the variant held by a Token.
type TokenKind int

const (
	TokenTerm TokenKind = iota
	TokenQuotedTerm
	TokenAnd
	TokenOr
	TokenNot
)

// Token is one element of a tokenized search query. Col is nil when the
// term has no column scope; Text is always lowercased, and Col is
// lowercased when present. And/Or/Not tokens carry no payload.
type Token struct {
	Kind TokenKind
	Col  *string
	Text string
}

func isOperand(t Token) bool {
	return t.Kind == TokenTerm || t.Kind == TokenQuotedTerm
}

func foldLower(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

func colPtr(s string) *string {
	lower := foldLower(s)
	return &lower
}

// rawPart is an intermediate lexical unit before token mapping: the text
// between delimiters, and whether it came from inside double quotes.
type rawPart struct {
	text   string
	quoted bool
}

// Tokenize parses a user search string into a token stream ready for RPN
// conversion. It never fails: degenerate input (only operators, only
// whitespace, empty string) simply yields a token stream with no operand;
// callers that find no terms in it treat the search as absent and admit
// every row.
func Tokenize(input string) []Token {
	parts := lexRawParts(input)
	parts = mergeColumnPhrases(parts)
	tokens := mapPartsToTokens(parts)
	tokens = applyColumnCarryOver(tokens)
	tokens = insertImplicitAnd(tokens)
	return tokens
}

// lexRawParts is the single-pass character scanner. Double quotes delimit
// a phrase (whitespace and '|' are literal inside); outside quotes, '|' is
// a token boundary (runs of '|' collapse to one), and whitespace separates
// parts.
func lexRawParts(input string) []rawPart {
	var parts []rawPart
	var buf strings.Builder
	inQuotes := false

	flush := func(quoted bool) {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			parts = append(parts, rawPart{text: text, quoted: quoted})
		}
		buf.Reset()
	}

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes {
				flush(true)
				inQuotes = false
			} else {
				flush(false)
				inQuotes = true
			}
		case ch == '|' && !inQuotes:
			flush(false)
			parts = append(parts, rawPart{text: "|", quoted: false})
			for i+1 < len(runes) && runes[i+1] == '|' {
				i++
			}
		case isSpace(ch) && !inQuotes:
			flush(false)
		default:
			buf.WriteRune(ch)
		}
	}
	// Flush any trailing buffer, including an unterminated quote.
	flush(inQuotes)
	return parts
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// mergeColumnPhrases merges a raw part ending in ':' with the following
// quoted part into a single column-scoped quoted phrase, e.g.
// ("host:", false) ("WS01 login", true) -> ("host:\"WS01 login\"", true).
func mergeColumnPhrases(parts []rawPart) []rawPart {
	merged := make([]rawPart, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		p := parts[i]
		if !p.quoted && strings.HasSuffix(p.text, ":") && i+1 < len(parts) && parts[i+1].quoted {
			col := strings.TrimSuffix(p.text, ":")
			phrase := parts[i+1].text
			merged = append(merged, rawPart{text: col + ":\"" + phrase + "\"", quoted: true})
			i++
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// mapPartsToTokens converts each raw part into a Token per the mapping
// rules in spec §4.C.
func mapPartsToTokens(parts []rawPart) []Token {
	tokens := make([]Token, 0, len(parts))
	for _, p := range parts {
		if p.text == "|" && !p.quoted {
			tokens = append(tokens, Token{Kind: TokenOr})
			continue
		}
		if p.text == "-" && !p.quoted {
			// A lone '-' is a Not with no operand; drop it.
			continue
		}
		if !p.quoted && strings.HasPrefix(p.text, "-") && len(p.text) >= 2 {
			tokens = append(tokens, Token{Kind: TokenNot})
			tokens = append(tokens, termToken(p.text[1:], false))
			continue
		}
		tokens = append(tokens, termToken(p.text, p.quoted))
	}
	return tokens
}

// termToken builds a single Term or QuotedTerm token from a raw part body
// (with any leading '-' already stripped).
func termToken(text string, quoted bool) Token {
	if quoted {
		if idx := strings.Index(text, ":\""); idx >= 0 {
			col := text[:idx]
			phrase := strings.Trim(strings.TrimSpace(text[idx+1:]), "\"")
			return Token{Kind: TokenQuotedTerm, Col: colPtr(col), Text: foldLower(phrase)}
		}
		return Token{Kind: TokenQuotedTerm, Text: foldLower(text)}
	}
	if idx := strings.Index(text, ":"); idx >= 0 {
		col := text[:idx]
		rest := text[idx+1:]
		return Token{Kind: TokenTerm, Col: colPtr(col), Text: foldLower(rest)}
	}
	return Token{Kind: TokenTerm, Text: foldLower(text)}
}

// applyColumnCarryOver propagates the column of the last operand across a
// following Or (and a following Not) onto the next operand that doesn't
// already specify its own column. Carry is cleared by And.
func applyColumnCarryOver(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	var lastOperandCol *string
	var carry *string

	for _, tok := range tokens {
		switch tok.Kind {
		case TokenTerm, TokenQuotedTerm:
			newCol := tok.Col
			if newCol == nil {
				newCol = carry
			}
			carry = nil
			lastOperandCol = newCol
			tok.Col = newCol
			out = append(out, tok)
		case TokenOr:
			carry = lastOperandCol
			out = append(out, tok)
		case TokenAnd:
			carry = nil
			out = append(out, tok)
		case TokenNot:
			out = append(out, tok)
		}
	}
	return out
}

// insertImplicitAnd inserts an And token between any two adjacent operands,
// or between an operand and a following Not.
func insertImplicitAnd(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens)*2)
	for i, tok := range tokens {
		out = append(out, tok)
		if i+1 < len(tokens) {
			a := tokens[i]
			b := tokens[i+1]
			if isOperand(a) && (isOperand(b) || b.Kind == TokenNot) {
				out = append(out, Token{Kind: TokenAnd})
			}
		}
	}
	return out
}

// TermKey identifies a unique (column, text) term the mask evaluator must
// precompute a vector for.
type TermKey struct {
	Col  *string
	Text string
}

// CollectTerms returns the deduplicated set of non-empty term keys
// referenced by tokens, in first-seen order.
func CollectTerms(tokens []Token) []TermKey {
	var keys []TermKey
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if tok.Kind != TokenTerm && tok.Kind != TokenQuotedTerm {
			continue
		}
		if tok.Text == "" {
			continue
		}
		dedupKey := termKeyString(tok.Col, tok.Text)
		if seen[dedupKey] {
			continue
		}
		seen[dedupKey] = true
		keys = append(keys, TermKey{Col: tok.Col, Text: tok.Text})
	}
	return keys
}

func termKeyString(col *string, text string) string {
	if col == nil {
		return "\x00" + text
	}
	return *col + "\x00" + text
}

// ReferencedColumns returns the deduplicated set of lowercased column names
// explicitly scoped by any term in tokens, in first-seen order.
func ReferencedColumns(tokens []Token) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if (tok.Kind != TokenTerm && tok.Kind != TokenQuotedTerm) || tok.Col == nil {
			continue
		}
		if seen[*tok.Col] {
			continue
		}
		seen[*tok.Col] = true
		cols = append(cols, *tok.Col)
	}
	return cols
}
