package sql

import "strings"

// ExtractSQL pulls the SQL statement out of a model response. Fenced
// ```sql blocks win, then any fenced block, then everything from the
// first standalone SELECT or WITH onward. Returns "" when no statement
// can be found.
func ExtractSQL(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)

	for _, fence := range []string{"```sql", "```"} {
		start := strings.Index(lower, fence)
		if start < 0 {
			continue
		}
		body := text[start+len(fence):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		if body = strings.TrimSpace(body); body != "" {
			return body
		}
	}

	for _, kw := range []string{"select", "with"} {
		if idx := indexWord(lower, kw); idx >= 0 {
			return strings.TrimSpace(text[idx:])
		}
	}
	return ""
}

// indexWord finds a whole-word occurrence of word in lower, so prose
// like "selected" never counts as a statement start.
func indexWord(lower, word string) int {
	start := 0
	for {
		idx := strings.Index(lower[start:], word)
		if idx < 0 {
			return -1
		}
		idx += start
		beforeOK := idx == 0 || !isIdentPart(lower[idx-1])
		afterOK := idx+len(word) >= len(lower) || !isIdentPart(lower[idx+len(word)])
		if beforeOK && afterOK {
			return idx
		}
		start = idx + len(word)
	}
}

// whereFollowKeywords are the clauses that may legally follow a removed
// placeholder WHERE.
var whereFollowKeywords = map[string]bool{
	"GROUP": true, "ORDER": true, "LIMIT": true, "HAVING": true, "OFFSET": true,
}

// CleanMeaninglessWhere removes placeholder predicates the model likes
// to emit: WHERE 1=1 or WHERE TRUE when followed by the end of the
// statement, a semicolon, or a GROUP/ORDER/LIMIT/HAVING/OFFSET clause.
// A placeholder that is ANDed with real conditions stays.
func CleanMeaninglessWhere(sqlText string) string {
	tokens, err := Tokenize(sqlText)
	if err != nil {
		return sqlText
	}

	nextSig := func(i int) int {
		for j := i + 1; j < len(tokens); j++ {
			if k := tokens[j].Kind; k != TokenWhitespace && k != TokenComment {
				return j
			}
		}
		return -1
	}

	deletes := make(map[int]bool)
	changed := false
	for i, t := range tokens {
		if t.Kind != TokenIdentifier || !strings.EqualFold(t.Text, "WHERE") {
			continue
		}
		end := -1
		j := nextSig(i)
		switch {
		case j >= 0 && tokens[j].Kind == TokenIdentifier && strings.EqualFold(tokens[j].Text, "TRUE"):
			end = j
		case j >= 0 && tokens[j].Kind == TokenNumber && tokens[j].Text == "1":
			eq := nextSig(j)
			if eq >= 0 && tokens[eq].Kind == TokenSymbol && tokens[eq].Text == "=" {
				if one := nextSig(eq); one >= 0 && tokens[one].Kind == TokenNumber && tokens[one].Text == "1" {
					end = one
				}
			}
		}
		if end < 0 {
			continue
		}
		if after := nextSig(end); after >= 0 {
			t2 := tokens[after]
			isBreak := (t2.Kind == TokenSymbol && t2.Text == ";") ||
				(t2.Kind == TokenIdentifier && whereFollowKeywords[strings.ToUpper(t2.Text)])
			if !isBreak {
				continue
			}
		}
		for k := i; k <= end; k++ {
			deletes[k] = true
		}
		for k := i - 1; k >= 0 && tokens[k].Kind == TokenWhitespace; k-- {
			deletes[k] = true
		}
		changed = true
	}
	if !changed {
		return sqlText
	}

	var sb strings.Builder
	for i, t := range tokens {
		if !deletes[i] {
			sb.WriteString(t.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
