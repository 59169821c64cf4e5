package decoder

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// ErrInvalidTables is returned when a decode table file fails validation.
var ErrInvalidTables = errors.New("invalid decode tables")

// RoleLayout maps fixed account positions to role names.
// The layout is active only when the instruction has at least MinAccounts accounts.
type RoleLayout struct {
	MinAccounts int
	Roles       map[int]string
}

// ProgramTable is the decode table for a single program.
type ProgramTable struct {
	ID      string
	Name    string
	Opcodes map[byte]string       // first payload byte -> instruction kind
	Layouts map[string]RoleLayout // instruction kind -> role layout
}

// Tables is a versioned set of program decode tables keyed by program ID.
type Tables struct {
	Version  int
	Programs map[string]*ProgramTable
}

// ProgramIDs returns the program IDs in the tables, sorted.
func (t *Tables) ProgramIDs() []string {
	ids := make([]string, 0, len(t.Programs))
	for id := range t.Programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type tablesFile struct {
	Version  int           `yaml:"version"`
	Programs []programFile `yaml:"programs"`
}

type programFile struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Instructions []instructionFile `yaml:"instructions"`
}

type instructionFile struct {
	Kind        string         `yaml:"kind"`
	Opcode      *int           `yaml:"opcode"`
	Anchor      string         `yaml:"anchor"`
	MinAccounts int            `yaml:"min_accounts"`
	Roles       map[int]string `yaml:"roles"`
}

// AnchorOpcode returns the opcode byte of an Anchor instruction: the first byte
// of sha256("global:<name>").
func AnchorOpcode(name string) byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[0]
}

// DefaultTables returns the embedded decode tables.
func DefaultTables() (*Tables, error) {
	return LoadTables(bytes.NewReader(defaultTablesYAML))
}

// LoadTablesFile loads decode tables from a YAML file.
func LoadTablesFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decode tables: %w", err)
	}
	defer f.Close()

	tables, err := LoadTables(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tables, nil
}

// LoadTables parses and validates decode tables from r.
// Unknown fields, duplicate programs, duplicate opcodes or kinds, and role
// indexes outside the layout's minimum account count are rejected.
func LoadTables(r io.Reader) (*Tables, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file tablesFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidTables, err)
	}
	if file.Version <= 0 {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidTables)
	}

	tables := &Tables{
		Version:  file.Version,
		Programs: make(map[string]*ProgramTable, len(file.Programs)),
	}
	for _, pf := range file.Programs {
		pt, err := buildProgram(pf)
		if err != nil {
			return nil, err
		}
		if _, dup := tables.Programs[pt.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate program %s", ErrInvalidTables, pt.ID)
		}
		tables.Programs[pt.ID] = pt
	}
	return tables, nil
}

func buildProgram(pf programFile) (*ProgramTable, error) {
	if pf.ID == "" {
		return nil, fmt.Errorf("%w: program without id", ErrInvalidTables)
	}
	pt := &ProgramTable{
		ID:      pf.ID,
		Name:    pf.Name,
		Opcodes: make(map[byte]string, len(pf.Instructions)),
		Layouts: make(map[string]RoleLayout),
	}
	kinds := make(map[string]struct{}, len(pf.Instructions))

	for _, ins := range pf.Instructions {
		if ins.Kind == "" {
			return nil, fmt.Errorf("%w: %s: instruction without kind", ErrInvalidTables, pf.ID)
		}
		if _, dup := kinds[ins.Kind]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate kind %q", ErrInvalidTables, pf.ID, ins.Kind)
		}
		kinds[ins.Kind] = struct{}{}

		op, err := instructionOpcode(ins)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s: %v", ErrInvalidTables, pf.ID, ins.Kind, err)
		}
		if prev, dup := pt.Opcodes[op]; dup {
			return nil, fmt.Errorf("%w: %s: opcode %d used by %q and %q", ErrInvalidTables, pf.ID, op, prev, ins.Kind)
		}
		pt.Opcodes[op] = ins.Kind

		if len(ins.Roles) == 0 {
			continue
		}
		for idx, role := range ins.Roles {
			if idx < 0 || idx >= ins.MinAccounts {
				return nil, fmt.Errorf("%w: %s: %s: role %q index %d outside min_accounts %d",
					ErrInvalidTables, pf.ID, ins.Kind, role, idx, ins.MinAccounts)
			}
		}
		pt.Layouts[ins.Kind] = RoleLayout{MinAccounts: ins.MinAccounts, Roles: ins.Roles}
	}
	return pt, nil
}

func instructionOpcode(ins instructionFile) (byte, error) {
	switch {
	case ins.Opcode != nil && ins.Anchor != "":
		return 0, errors.New("both opcode and anchor set")
	case ins.Opcode != nil:
		if *ins.Opcode < 0 || *ins.Opcode > 255 {
			return 0, fmt.Errorf("opcode %d out of range", *ins.Opcode)
		}
		return byte(*ins.Opcode), nil
	case ins.Anchor != "":
		return AnchorOpcode(ins.Anchor), nil
	default:
		return 0, errors.New("opcode or anchor required")
	}
}
