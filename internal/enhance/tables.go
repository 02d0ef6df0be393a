// Package enhance expands raw queries with domain synonyms, detects intent,
// and generates variations to improve retrieval recall.
package enhance

import "regexp"

// SynonymEntry maps a dictionary key to its expansion terms. Entries are
// ordered so expansion output is deterministic.
type SynonymEntry struct {
	Key      string
	Synonyms []string
}

// IntentRule is one intent category with its match patterns.
type IntentRule struct {
	Intent   string
	Patterns []*regexp.Regexp
}

// Tables is the immutable configuration an Enhancer is built from. Injecting
// it at construction keeps the dictionaries swappable and testable per
// instance instead of being module state.
type Tables struct {
	Synonyms []SynonymEntry
	Intents  []IntentRule
	// Boosts maps intent -> source file -> score multiplier.
	Boosts map[string]map[string]float64
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// DefaultTables returns the portfolio-domain dictionaries: synonyms keyed on
// common query words, intent patterns for the seven query categories, and the
// intent-to-source-file boost map.
func DefaultTables() Tables {
	return Tables{
		Synonyms: []SynonymEntry{
			{Key: "skills", Synonyms: []string{"abilities", "expertise", "proficiency", "capabilities", "competencies"}},
			{Key: "experience", Synonyms: []string{"background", "work history", "career", "expertise"}},
			{Key: "work", Synonyms: []string{"job", "employment", "position", "role", "career"}},
			{Key: "built", Synonyms: []string{"created", "developed", "made", "constructed", "engineered"}},
			{Key: "develop", Synonyms: []string{"build", "create", "engineer", "implement", "code"}},
			{Key: "project", Synonyms: []string{"work", "application", "system", "software", "product"}},
			{Key: "portfolio", Synonyms: []string{"projects", "work samples", "showcase", "examples"}},
			{Key: "technology", Synonyms: []string{"tech", "stack", "tools", "framework", "platform"}},
			{Key: "language", Synonyms: []string{"programming language", "coding language"}},
			{Key: "framework", Synonyms: []string{"library", "platform", "tool"}},
			{Key: "service", Synonyms: []string{"offering", "solution", "consulting"}},
			{Key: "help", Synonyms: []string{"assist", "support", "aid", "service"}},
			{Key: "contact", Synonyms: []string{"reach", "connect", "email", "message"}},
			{Key: "hire", Synonyms: []string{"employ", "recruit", "engage", "work with"}},
		},
		Intents: []IntentRule{
			{Intent: "experience", Patterns: patterns(
				`work(ed|ing)?`, `experience`, `job`, `career`, `employment`,
				`position`, `role`, `company`, `employer`)},
			{Intent: "skills", Patterns: patterns(
				`skill`, `tech`, `language`, `framework`, `tool`, `proficien`,
				`expert`, `know`, `familiar`, `capab`)},
			{Intent: "projects", Patterns: patterns(
				`project`, `portfolio`, `built`, `created`, `developed`, `made`,
				`work on`, `application`, `system`, `software`)},
			{Intent: "education", Patterns: patterns(
				`education`, `degree`, `university`, `college`, `study`,
				`graduate`, `certificate`, `course`)},
			{Intent: "contact", Patterns: patterns(
				`contact`, `email`, `reach`, `connect`, `hire`, `available`,
				`message`, `talk`, `discuss`)},
			{Intent: "services", Patterns: patterns(
				`service`, `offer`, `provide`, `help`, `consult`, `solution`)},
			{Intent: "about", Patterns: patterns(
				`who`, `about`, `bio`, `background`, `introduction`, `profile`)},
		},
		Boosts: map[string]map[string]float64{
			"experience": {"timeline.json": 1.3},
			"skills":     {"technologies.json": 1.3, "timeline.json": 1.2},
			"projects":   {"portfolio.json": 1.4, "timeline.json": 1.1},
			"education":  {"timeline.json": 1.3, "about.json": 1.1},
			"contact":    {"about.json": 1.5},
			"services":   {"services.json": 1.5},
			"about":      {"about.json": 1.5, "timeline.json": 1.1},
		},
	}
}
