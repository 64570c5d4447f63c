/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mvcp

import "strings"

// Tokenize splits a command line on spaces. A token opening a double quote
// extends up to the token that closes it, and one layer of surrounding
// quotes is removed from every token.
func Tokenize(line string) []string {
	parts := strings.Split(line, " ")
	tokens := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		tok := parts[i]
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, `"`) && !(len(tok) > 1 && strings.HasSuffix(tok, `"`)) {
			for i+1 < len(parts) {
				i++
				tok += " " + parts[i]
				if strings.HasSuffix(parts[i], `"`) {
					break
				}
			}
		}
		tokens = append(tokens, StripQuotes(tok))
	}
	return tokens
}

// StripQuotes removes one leading and one trailing double quote.
func StripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}
