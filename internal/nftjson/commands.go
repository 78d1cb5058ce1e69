package nftjson

import "encoding/json"

// Commands is a batch of commands in the engine's envelope format. The
// engine applies a batch atomically: either every command takes effect or
// none do.
type Commands struct {
	Nftables []Command `json:"nftables"`
}

func NewCommands(commands ...Command) Commands {
	return Commands{Nftables: commands}
}

// Push appends a command to the batch.
func (c *Commands) Push(cmd Command) {
	c.Nftables = append(c.Nftables, cmd)
}

// Append appends several commands to the batch.
func (c *Commands) Append(cmds ...Command) {
	c.Nftables = append(c.Nftables, cmds...)
}

// Len reports the number of commands in the batch.
func (c *Commands) Len() int {
	return len(c.Nftables)
}

// Command is one batch entry. Exactly one field is set; the JSON key
// carries the operation.
type Command struct {
	Add    *Object `json:"add,omitempty"`
	Create *Object `json:"create,omitempty"`
	Delete *Object `json:"delete,omitempty"`
	Flush  *Object `json:"flush,omitempty"`
	List   *Object `json:"list,omitempty"`
}

// Object selects the nftables object a command operates on. Ruleset,
// Chains and Sets take a literal JSON null when selected.
type Object struct {
	Table    any             `json:"table,omitempty"`
	Chain    any             `json:"chain,omitempty"`
	Rule     *Rule           `json:"rule,omitempty"`
	Set      any             `json:"set,omitempty"`
	Map      any             `json:"map,omitempty"`
	Element  *SetElements    `json:"element,omitempty"`
	Limit    *NamedLimit     `json:"limit,omitempty"`
	CtHelper *CtHelperConfig `json:"ct helper,omitempty"`
	Ruleset  json.RawMessage `json:"ruleset,omitempty"`
	Chains   json.RawMessage `json:"chains,omitempty"`
	Sets     json.RawMessage `json:"sets,omitempty"`
}

var jsonNull = json.RawMessage("null")

// Rule is a rule object for add commands.
type Rule struct {
	Family  TableFamily `json:"family"`
	Table   string      `json:"table"`
	Chain   string      `json:"chain"`
	Expr    []Statement `json:"expr"`
	Comment string      `json:"comment,omitempty"`
}

// NewRule builds a rule in the given chain from its statements.
func NewRule(chain ChainName, statements ...Statement) Rule {
	return Rule{
		Family: chain.Family,
		Table:  chain.Table,
		Chain:  chain.Name,
		Expr:   statements,
	}
}

// SetConfig describes a set to create.
type SetConfig struct {
	Name      SetName
	Types     []ElementType
	Policy    string
	Flags     []SetFlag
	Elem      []Expression
	Timeout   *int64
	Size      *int64
	Comment   string
	AutoMerge bool
}

func NewSetConfig(name SetName, types ...ElementType) SetConfig {
	return SetConfig{Name: name, Types: types}
}

// WithFlag returns a copy of the config with the flag added.
func (c SetConfig) WithFlag(flag SetFlag) SetConfig {
	c.Flags = append(c.Flags, flag)
	return c
}

// WithAutoMerge returns a copy of the config with interval auto-merging
// enabled, collapsing overlapping and adjacent elements.
func (c SetConfig) WithAutoMerge() SetConfig {
	c.AutoMerge = true
	return c
}

func (c SetConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.object(""))
}

type setObject struct {
	Family    TableFamily  `json:"family"`
	Table     string       `json:"table"`
	Name      string       `json:"name"`
	Type      any          `json:"type"`
	Policy    string       `json:"policy,omitempty"`
	Flags     []SetFlag    `json:"flags,omitempty"`
	Elem      []Expression `json:"elem,omitempty"`
	Timeout   *int64       `json:"timeout,omitempty"`
	Size      *int64       `json:"size,omitempty"`
	Comment   string       `json:"comment,omitempty"`
	AutoMerge bool         `json:"auto-merge,omitempty"`
	Map       string       `json:"map,omitempty"`
}

func (c SetConfig) object(mapType string) setObject {
	obj := setObject{
		Family:    c.Name.Family,
		Table:     c.Name.Table,
		Name:      c.Name.Name,
		Policy:    c.Policy,
		Flags:     c.Flags,
		Elem:      c.Elem,
		Timeout:   c.Timeout,
		Size:      c.Size,
		Comment:   c.Comment,
		AutoMerge: c.AutoMerge,
		Map:       mapType,
	}

	// a single key type is emitted bare, not as a one-element array
	if len(c.Types) == 1 {
		obj.Type = c.Types[0]
	} else {
		obj.Type = c.Types
	}

	return obj
}

// MapConfig describes a map to create; MapType is the data type, e.g.
// "verdict" for a verdict map.
type MapConfig struct {
	SetConfig
	MapType string
}

func NewMapConfig(name SetName, mapType string, keyTypes ...ElementType) MapConfig {
	return MapConfig{SetConfig: NewSetConfig(name, keyTypes...), MapType: mapType}
}

func (c MapConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.object(c.MapType))
}

// SetElements populates elements of an existing set or map.
type SetElements struct {
	Family TableFamily  `json:"family"`
	Table  string       `json:"table"`
	Name   string       `json:"name"`
	Elem   []Expression `json:"elem"`
}

// NewSetElements builds an element batch for a set.
func NewSetElements(name SetName, elements ...Expression) SetElements {
	return SetElements{
		Family: name.Family,
		Table:  name.Table,
		Name:   name.Name,
		Elem:   elements,
	}
}

// NamedLimit describes a named limit object.
type NamedLimit struct {
	Family  TableFamily   `json:"family"`
	Table   string        `json:"table"`
	Name    string        `json:"name"`
	Rate    int64         `json:"rate"`
	Per     RateTimescale `json:"per"`
	Burst   *int64        `json:"burst,omitempty"`
	Unit    RateUnit      `json:"unit,omitempty"`
	Inv     *bool         `json:"inv,omitempty"`
	Comment string        `json:"comment,omitempty"`
}

// CtHelperProtocol is the transport protocol of a conntrack helper.
type CtHelperProtocol string

const (
	CtHelperTCP CtHelperProtocol = "tcp"
	CtHelperUDP CtHelperProtocol = "udp"
)

// CtHelperConfig describes a conntrack helper object.
type CtHelperConfig struct {
	Family   TableFamily      `json:"family"`
	Table    string           `json:"table"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Protocol CtHelperProtocol `json:"protocol"`
	L3Proto  IpFamily         `json:"l3proto,omitempty"`
}

func AddTable(table TablePart) Command {
	return Command{Add: &Object{Table: table.Name()}}
}

func AddChain(chain ChainName) Command {
	return Command{Add: &Object{Chain: chain}}
}

func AddRule(rule Rule) Command {
	return Command{Add: &Object{Rule: &rule}}
}

func AddSet(set SetConfig) Command {
	return Command{Add: &Object{Set: set}}
}

func AddMap(m MapConfig) Command {
	return Command{Add: &Object{Map: m}}
}

func AddElement(elements SetElements) Command {
	return Command{Add: &Object{Element: &elements}}
}

func AddLimit(limit NamedLimit) Command {
	return Command{Add: &Object{Limit: &limit}}
}

func AddCtHelper(helper CtHelperConfig) Command {
	return Command{Add: &Object{CtHelper: &helper}}
}

func FlushTable(table TableName) Command {
	return Command{Flush: &Object{Table: table}}
}

func FlushChain(chain ChainName) Command {
	return Command{Flush: &Object{Chain: chain}}
}

func FlushSet(set SetName) Command {
	return Command{Flush: &Object{Set: set}}
}

func FlushMap(m SetName) Command {
	return Command{Flush: &Object{Map: m}}
}

func FlushRuleset() Command {
	return Command{Flush: &Object{Ruleset: jsonNull}}
}

func DeleteTable(table TableName) Command {
	return Command{Delete: &Object{Table: table}}
}

func DeleteChain(chain ChainName) Command {
	return Command{Delete: &Object{Chain: chain}}
}

func DeleteSet(set SetName) Command {
	return Command{Delete: &Object{Set: set}}
}

func ListChains() Command {
	return Command{List: &Object{Chains: jsonNull}}
}

func ListSets() Command {
	return Command{List: &Object{Sets: jsonNull}}
}
