package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrCycle is returned when the declared references cannot be ordered
	ErrCycle = errors.New("dependency cycle between kinds")
	// ErrUnknownKind is returned when a reference names a kind that is not declared
	ErrUnknownKind = errors.New("unknown kind")
	// ErrMissingKey is returned when a record lacks a natural key field
	ErrMissingKey = errors.New("missing natural key field")
)

// Reference is a foreign-key edge from Field to the surrogate id of Kind
type Reference struct {
	Field string `yaml:"field" json:"field"`
	Kind  string `yaml:"kind" json:"kind"`
}

// Association is a many-to-many set owned by a kind and stored in a join table.
// In snapshots the set is carried in Field as a list of the target's natural keys.
type Association struct {
	Field        string `yaml:"field" json:"field"`
	Kind         string `yaml:"kind" json:"kind"`
	Table        string `yaml:"table" json:"table"`
	OwnerColumn  string `yaml:"owner_column" json:"owner_column"`
	TargetColumn string `yaml:"target_column" json:"target_column"`
}

// Kind describes one entity type of the platform
type Kind struct {
	Name        string       `yaml:"name" json:"name"`
	Table       string       `yaml:"table" json:"table"`
	IDField     string       `yaml:"id_field" json:"id_field"`
	NaturalKey  []string     `yaml:"natural_key" json:"natural_key"`
	References  []Reference  `yaml:"references,omitempty" json:"references,omitempty"`
	Association *Association `yaml:"association,omitempty" json:"association,omitempty"`
	Audit       bool         `yaml:"audit,omitempty" json:"audit,omitempty"`
}

// Key is the natural key of a record, in NaturalKey field order
type Key struct {
	Fields []string
	Values []any
}

// String renders the key as field=value pairs for logs and summaries
func (k Key) String() string {
	parts := make([]string, len(k.Fields))
	for i, f := range k.Fields {
		parts[i] = fmt.Sprintf("%s=%v", f, k.Values[i])
	}
	return strings.Join(parts, ",")
}

// KeyOf extracts the natural key of record. A nil or absent field is an error.
func (k Kind) KeyOf(record map[string]any) (Key, error) {
	key := Key{Fields: k.NaturalKey, Values: make([]any, len(k.NaturalKey))}
	for i, f := range k.NaturalKey {
		v, ok := record[f]
		if !ok || v == nil {
			return Key{}, fmt.Errorf("%w %q on %s", ErrMissingKey, f, k.Name)
		}
		key.Values[i] = v
	}
	return key, nil
}

// Dependencies returns the distinct kinds this kind must be loaded after
func (k Kind) Dependencies() []string {
	var deps []string
	seen := map[string]bool{k.Name: true}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	for _, ref := range k.References {
		add(ref.Kind)
	}
	if k.Association != nil {
		add(k.Association.Kind)
	}
	return deps
}

// Catalog is the set of kinds the tool knows how to move
type Catalog struct {
	kinds   []Kind
	byName  map[string]int
	byTable map[string]int
}

type catalogFile struct {
	Kinds []Kind `yaml:"kinds"`
}

// New validates kinds and builds a catalog. Declaration order is kept and
// breaks ties when ordering.
func New(kinds []Kind) (*Catalog, error) {
	c := &Catalog{
		byName:  make(map[string]int, len(kinds)),
		byTable: make(map[string]int, len(kinds)),
	}

	tables := make(map[string]string)
	for i, k := range kinds {
		if k.Name == "" {
			return nil, fmt.Errorf("kind #%d has no name", i+1)
		}
		if _, dup := c.byName[k.Name]; dup {
			return nil, fmt.Errorf("duplicate kind %q", k.Name)
		}
		if k.Table == "" {
			k.Table = k.Name
		}
		if k.IDField == "" {
			k.IDField = "id"
		}
		if len(k.NaturalKey) == 0 {
			return nil, fmt.Errorf("kind %q has no natural key", k.Name)
		}
		if owner, dup := tables[k.Table]; dup {
			return nil, fmt.Errorf("table %q declared by both %q and %q", k.Table, owner, k.Name)
		}
		tables[k.Table] = k.Name

		if a := k.Association; a != nil {
			if a.Field == "" || a.Kind == "" || a.Table == "" || a.OwnerColumn == "" || a.TargetColumn == "" {
				return nil, fmt.Errorf("association on kind %q is incomplete", k.Name)
			}
			if owner, dup := tables[a.Table]; dup {
				return nil, fmt.Errorf("table %q declared by both %q and %q", a.Table, owner, k.Name)
			}
			tables[a.Table] = k.Name
			assoc := *a
			k.Association = &assoc
		}

		c.byName[k.Name] = i
		c.byTable[k.Table] = i
		c.kinds = append(c.kinds, k)
	}

	for _, k := range c.kinds {
		if k.Association == nil {
			continue
		}
		target, ok := c.Kind(k.Association.Kind)
		if !ok {
			continue
		}
		if len(target.NaturalKey) != 1 {
			return nil, fmt.Errorf("association %s.%s targets %q which has a compound natural key",
				k.Name, k.Association.Field, target.Name)
		}
	}

	return c, nil
}

// Parse reads a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(file.Kinds) == 0 {
		return nil, fmt.Errorf("catalog declares no kinds")
	}
	return New(file.Kinds)
}

// Load reads a YAML catalog file from path
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Kinds returns all kinds in declaration order
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

// Kind looks a kind up by name
func (c *Catalog) Kind(name string) (Kind, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Kind{}, false
	}
	return c.kinds[i], true
}

// KindForTable looks a kind up by its table name
func (c *Catalog) KindForTable(table string) (Kind, bool) {
	i, ok := c.byTable[table]
	if !ok {
		return Kind{}, false
	}
	return c.kinds[i], true
}

// OwnerOfJoinTable returns the kind whose association is stored in table
func (c *Catalog) OwnerOfJoinTable(table string) (Kind, bool) {
	for _, k := range c.kinds {
		if k.Association != nil && k.Association.Table == table {
			return k, true
		}
	}
	return Kind{}, false
}

// Order returns the kinds sorted so that every kind comes after the kinds it references.
// Self references are ignored.
func (c *Catalog) Order() ([]Kind, error) {
	indegree := make([]int, len(c.kinds))
	dependents := make([][]int, len(c.kinds))

	for i, k := range c.kinds {
		for _, dep := range k.Dependencies() {
			j, ok := c.byName[dep]
			if !ok {
				return nil, fmt.Errorf("%w %q referenced by %q", ErrUnknownKind, dep, k.Name)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]Kind, 0, len(c.kinds))
	done := make([]bool, len(c.kinds))
	for len(ordered) < len(c.kinds) {
		next := -1
		for i := range c.kinds {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, k := range c.kinds {
				if !done[i] {
					stuck = append(stuck, k.Name)
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
		}

		done[next] = true
		ordered = append(ordered, c.kinds[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}

	return ordered, nil
}

// ReverseOrder returns Order reversed, so dependents come before their dependencies
func (c *Catalog) ReverseOrder() ([]Kind, error) {
	ordered, err := c.Order()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	return ordered, nil
}

// Tables returns every table the catalog owns in load order, each join table
// directly after its owner.
func (c *Catalog) Tables() ([]string, error) {
	ordered, err := c.Order()
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(ordered)+1)
	for _, k := range ordered {
		tables = append(tables, k.Table)
		if k.Association != nil {
			tables = append(tables, k.Association.Table)
		}
	}
	return tables, nil
}
