package policy

// Group is a named, cluster-level bundle of rules referenced from
// other rule sections via "GROUP name".
type Group struct {
	Rules   []Rule
	Comment string
}

func (g *Group) parseEntry(line string) error {
	rule, err := ParseRule(line)
	if err != nil {
		return err
	}
	g.Rules = append(g.Rules, rule)
	return nil
}
