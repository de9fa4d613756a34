package ai

import (
	"regexp"
	"strings"
)

const maxExtractedSkills = 7

// GeneralSkill is used when no known keyword appears in the text.
const GeneralSkill = "General Software Development"

// skillKeywords maps lowercase words to skill names, in match priority order.
var skillKeywords = []struct {
	keyword string
	skill   string
}{
	{"python", "Python"},
	{"javascript", "JavaScript"},
	{"typescript", "TypeScript"},
	{"java", "Java"},
	{"golang", "Go"},
	{"react", "React"},
	{"fastapi", "FastAPI"},
	{"django", "Django"},
	{"flask", "Flask"},
	{"node", "Node.js"},
	{"node.js", "Node.js"},
	{"nodejs", "Node.js"},
	{"mongodb", "MongoDB"},
	{"postgresql", "PostgreSQL"},
	{"postgres", "PostgreSQL"},
	{"sql", "SQL"},
	{"docker", "Docker"},
	{"kubernetes", "Kubernetes"},
	{"git", "Git"},
	{"api", "API Development"},
	{"rest", "REST API"},
	{"graphql", "GraphQL"},
	{"frontend", "Frontend Development"},
	{"backend", "Backend Development"},
	{"database", "Database Design"},
}

var wordRegex = regexp.MustCompile(`[a-z0-9.+#]+`)

// KeywordSkills extracts skills from text by keyword lookup. Matching is
// on whole words so "javascript" does not also yield "Java".
func KeywordSkills(text string) []string {
	words := make(map[string]bool)
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		words[strings.Trim(w, ".")] = true
	}

	seen := make(map[string]bool)
	var skills []string
	for _, kw := range skillKeywords {
		if !words[kw.keyword] || seen[kw.skill] {
			continue
		}
		seen[kw.skill] = true
		skills = append(skills, kw.skill)
		if len(skills) == maxExtractedSkills {
			break
		}
	}
	if len(skills) == 0 {
		return []string{GeneralSkill}
	}
	return skills
}
