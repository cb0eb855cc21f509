package source

import (
	"regexp"
	"strconv"
)

var (
	ticketKeyPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,9})-(\d+)\b`)
	prURLPattern     = regexp.MustCompile(`github\.com/([\w.-]+)/([\w.-]+)/pull/(\d+)`)
	prShortPattern   = regexp.MustCompile(`\b([\w.-]+)/([\w.-]+)#(\d+)\b`)
)

// ExtractTicketKeys returns the Jira issue keys mentioned in the text, in
// order of first appearance, deduplicated.
func ExtractTicketKeys(text string) []string {
	matches := ticketKeyPattern.FindAllString(text, -1)
	return dedupe(matches)
}

// ExtractPRKeys returns pull request references mentioned in the text as
// canonical "owner/repo#N" keys, covering both full GitHub URLs and the
// short owner/repo#N form.
func ExtractPRKeys(text string) []string {
	var keys []string
	for _, m := range prURLPattern.FindAllStringSubmatch(text, -1) {
		keys = append(keys, m[1]+"/"+m[2]+"#"+m[3])
	}
	for _, m := range prShortPattern.FindAllStringSubmatch(text, -1) {
		if _, err := strconv.Atoi(m[3]); err == nil {
			keys = append(keys, m[1]+"/"+m[2]+"#"+m[3])
		}
	}
	return dedupe(keys)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
