package policy

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ParserConfig adjusts the generic section parser to the config level
// being read.
type ParserConfig struct {
	// GuestIfaceNames requires rule interfaces of the form "net<N>".
	GuestIfaceNames bool
	// IpsetScope enables "[IPSET ...]" sections and scopes their names.
	// Nil forbids set sections at this level.
	IpsetScope *Scope
	// IpsetVmid is the owning guest for guest-scoped sets.
	IpsetVmid uint32
	// ForwardOnly restricts rules to the FORWARD direction (bridge
	// configs); otherwise FORWARD rules are rejected.
	ForwardOnly bool
}

// SectionConfig is the raw, section-structured form of one firewall
// config file. Option values stay untyped strings here; each config
// level decodes them into its own option struct.
type SectionConfig struct {
	Options map[string]string
	Rules   []Rule
	Aliases map[string]Alias
	Ipsets  map[string]*Ipset
	Groups  map[string]*Group
}

type sectionKind uint8

const (
	secNone sectionKind = iota
	secOptions
	secAliases
	secRules
	secIpset
	secGroup
)

// ParseSections reads one firewall config file: "[OPTIONS]",
// "[ALIASES]", "[RULES]", "[IPSET name]" and "[group name]" sections
// with their respective line formats. Blank lines and full-line
// comments are skipped.
func ParseSections(input io.Reader, parserCfg ParserConfig) (*SectionConfig, error) {
	cfg := &SectionConfig{
		Options: map[string]string{},
		Aliases: map[string]Alias{},
		Ipsets:  map[string]*Ipset{},
		Groups:  map[string]*Group{},
	}

	section := secNone
	var curIpset *Ipset
	var curGroup *Group

	scanner := bufio.NewScanner(input)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := func() error {
			switch {
			case strings.EqualFold(line, "[OPTIONS]"):
				section = secOptions
			case strings.EqualFold(line, "[ALIASES]"):
				section = secAliases
			case strings.EqualFold(line, "[RULES]"):
				section = secRules
			case hasFoldPrefix(line, "[IPSET"):
				name, comment, err := parseNamedSectionTail(line[len("[IPSET"):])
				if err != nil {
					return err
				}
				if parserCfg.IpsetScope == nil {
					return fmt.Errorf("set sections are not allowed in this config")
				}
				ipset := &Ipset{
					Name:    NewIpsetName(*parserCfg.IpsetScope, strings.ToLower(name)),
					Comment: comment,
				}
				if _, dup := cfg.Ipsets[ipset.Name.Name]; dup {
					return fmt.Errorf("duplicate ipset %q", name)
				}
				cfg.Ipsets[ipset.Name.Name] = ipset
				curIpset = ipset
				section = secIpset
			case hasFoldPrefix(line, "[GROUP"):
				name, comment, err := parseNamedSectionTail(line[len("[GROUP"):])
				if err != nil {
					return err
				}
				name = strings.ToLower(name)
				if _, dup := cfg.Groups[name]; dup {
					return fmt.Errorf("duplicate group %q", name)
				}
				group := &Group{Comment: comment}
				cfg.Groups[name] = group
				curGroup = group
				section = secGroup
			case strings.HasPrefix(line, "["):
				return fmt.Errorf("invalid section %q", line)
			default:
				switch section {
				case secNone:
					return fmt.Errorf("config line with no section: %q", line)
				case secOptions:
					return cfg.parseOption(line)
				case secAliases:
					return cfg.parseAlias(line)
				case secRules:
					return cfg.parseRule(line, parserCfg)
				case secIpset:
					entry, err := ParseIpsetEntry(line)
					if err != nil {
						return err
					}
					curIpset.Entries = append(curIpset.Entries, entry)
				case secGroup:
					return curGroup.parseEntry(line)
				}
			}
			return nil
		}(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SectionConfig) parseOption(line string) error {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return fmt.Errorf("expected colon separated key and value, found %q", line)
	}
	key = strings.TrimSpace(key)
	if _, dup := c.Options[key]; dup {
		return fmt.Errorf("duplicate option %q", key)
	}
	c.Options[key] = strings.TrimSpace(value)
	return nil
}

func (c *SectionConfig) parseAlias(line string) error {
	alias, err := ParseAliasLine(line)
	if err != nil {
		return err
	}
	if _, dup := c.Aliases[alias.Name]; dup {
		return fmt.Errorf("duplicate alias %q", alias.Name)
	}
	c.Aliases[alias.Name] = alias
	return nil
}

func (c *SectionConfig) parseRule(line string, parserCfg ParserConfig) error {
	rule, err := ParseRule(line)
	if err != nil {
		return err
	}

	if rule.Match != nil {
		forward := rule.Match.Direction == DirForward
		if parserCfg.ForwardOnly && !forward {
			return fmt.Errorf("only FORWARD rules are allowed here")
		}
		if !parserCfg.ForwardOnly && forward {
			return fmt.Errorf("FORWARD rules are only allowed in bridge configs")
		}
		if forward && rule.Match.Verdict == VerdictReject {
			return fmt.Errorf("REJECT is not a valid verdict for FORWARD rules")
		}
	}

	if parserCfg.GuestIfaceNames {
		if iface := rule.Iface(); iface != "" {
			rest, ok := strings.CutPrefix(iface, "net")
			if !ok {
				return fmt.Errorf("interface name must be of the form \"net<number>\"")
			}
			if _, err := strconv.ParseUint(rest, 10, 16); err != nil {
				return fmt.Errorf("interface name must be of the form \"net<number>\"")
			}
		}
	}

	c.Rules = append(c.Rules, rule)
	return nil
}

// Alias looks up an alias by its lowercased name.
func (c *SectionConfig) Alias(name string) (Alias, bool) {
	alias, ok := c.Aliases[strings.ToLower(name)]
	return alias, ok
}

// IpsetNames returns the defined set names in sorted order for
// deterministic materialization.
func (c *SectionConfig) IpsetNames() []string {
	names := make([]string, 0, len(c.Ipsets))
	for name := range c.Ipsets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupNames returns the defined group names in sorted order.
func (c *SectionConfig) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// parseNamedSectionTail parses the remainder of "[IPSET name]" or
// "[group name]" after the keyword: the name, the closing bracket and
// an optional trailing "# comment".
func parseNamedSectionTail(line string) (name, comment string, err error) {
	line = strings.TrimSpace(line)

	name, line, ok := matchName(line)
	if !ok {
		return "", "", fmt.Errorf("expected a section name")
	}

	line, ok = strings.CutPrefix(strings.TrimSpace(line), "]")
	if !ok {
		return "", "", fmt.Errorf("expected closing ']' after section name")
	}

	line = strings.TrimSpace(line)
	if line != "" {
		rest, ok := strings.CutPrefix(line, "#")
		if !ok {
			return "", "", fmt.Errorf("unexpected trailing text after section header")
		}
		comment = strings.TrimSpace(rest)
	}
	return name, comment, nil
}
