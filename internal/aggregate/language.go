package aggregate

import "strings"

// DetectLanguage guesses the dominant language of a code blob from keyword
// heuristics. It feeds the analyze call's context and lexer selection; the
// guess is advisory and defaults to Python.
func DetectLanguage(code string) string {
	lower := strings.ToLower(code)

	switch {
	case containsAny(lower, "def ", "import ", "from ") && !containsAny(lower, "#include"):
		return "Python"
	case containsAny(lower, "func ", "package ") && strings.Contains(code, ":="):
		return "Go"
	case containsAny(lower, "public class", "import java"):
		return "Java"
	case containsAny(lower, "#include", "int main"):
		return "C++"
	case containsAny(lower, "function", "const ", "let ", "var "):
		return "JavaScript"
	}
	return "Python"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
