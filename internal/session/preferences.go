package session

import (
	"fmt"
	"strings"
)

// Utterance is one recorded wish. Contributor is empty for group-scope
// utterances. ArrivalOrder is global per session and never reused.
type Utterance struct {
	Contributor  string
	Text         string
	ArrivalOrder int
}

// Preferences is the append-only record of everything said during a
// coordination. Entries are never removed or reordered; arrival order is
// semantically meaningful because it is replayed into every prompt.
type Preferences struct {
	Common         []Utterance
	PerContributor map[string][]Utterance

	// contributorOrder remembers first appearance so the summary
	// projection is deterministic across recomputations.
	contributorOrder []string
	nextOrder        int
}

// NewPreferences creates an empty preference record.
func NewPreferences() *Preferences {
	return &Preferences{
		PerContributor: make(map[string][]Utterance),
	}
}

// AppendCommon records a group-thread utterance.
func (p *Preferences) AppendCommon(text string) {
	p.Common = append(p.Common, Utterance{Text: text, ArrivalOrder: p.nextOrder})
	p.nextOrder++
}

// AppendContributor records a private utterance for one contributor.
func (p *Preferences) AppendContributor(contributor, text string) {
	if _, seen := p.PerContributor[contributor]; !seen {
		p.contributorOrder = append(p.contributorOrder, contributor)
	}
	p.PerContributor[contributor] = append(p.PerContributor[contributor], Utterance{
		Contributor:  contributor,
		Text:         text,
		ArrivalOrder: p.nextOrder,
	})
	p.nextOrder++
}

// Contributors returns contributor IDs in order of first appearance.
func (p *Preferences) Contributors() []string {
	out := make([]string, len(p.contributorOrder))
	copy(out, p.contributorOrder)
	return out
}

// Len returns the total number of recorded utterances.
func (p *Preferences) Len() int {
	return p.nextOrder
}

// Summary renders the deterministic textual projection used to build every
// prompt: common utterances first in arrival order, then each contributor's
// utterances grouped by contributor in order of first appearance. The same
// preference record always renders the same text.
func (p *Preferences) Summary() string {
	if p.Len() == 0 {
		return "（まだ希望はありません）"
	}

	var b strings.Builder
	if len(p.Common) > 0 {
		b.WriteString("【グループ共通の希望】\n")
		for _, u := range p.Common {
			fmt.Fprintf(&b, "- %s\n", u.Text)
		}
	}
	if len(p.contributorOrder) > 0 {
		b.WriteString("【メンバー個別の希望】\n")
		for _, contributor := range p.contributorOrder {
			for _, u := range p.PerContributor[contributor] {
				fmt.Fprintf(&b, "- %s: %s\n", contributor, u.Text)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
