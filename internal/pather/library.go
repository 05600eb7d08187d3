package pather

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxDepth bounds how many run steps may be nested.
const MaxDepth = 8

// Library holds every path known to the macro, keyed by name. Names default to the file
// path relative to the library root without extension, e.g. "collect/honeystorm".
type Library struct {
	paths map[string]*Path
}

// NewLibrary validates the given paths, their cross references and checks for cycles.
func NewLibrary(paths ...*Path) (*Library, error) {
	l := &Library{paths: make(map[string]*Path, len(paths))}
	for _, p := range paths {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := l.paths[p.Name]; dup {
			return nil, fmt.Errorf("duplicate path %s", p.Name)
		}
		l.paths[p.Name] = p
	}
	if err := l.check(); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadDir reads every .yaml and .yml file below dir.
func LoadDir(dir string) (*Library, error) {
	var paths []*Path
	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(file))
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))

		p, err := loadFile(file, name)
		if err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error loading paths from %s: %w", dir, err)
	}

	return NewLibrary(paths...)
}

func loadFile(file, name string) (*Path, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("error reading path %s: %w", file, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	p.file = file
	return p, nil
}

// Decode parses a single path document, rejecting unknown fields.
func Decode(r io.Reader) (*Path, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)

	p := &Path{}
	if err := d.Decode(p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty path file")
		}
		return nil, err
	}
	return p, nil
}

func (l *Library) Get(name string) (*Path, bool) {
	p, ok := l.paths[name]
	return p, ok
}

func (l *Library) Names() []string {
	names := make([]string, 0, len(l.paths))
	for n := range l.paths {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (l *Library) check() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(l.paths))

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(append(stack, name), " -> "))
		case done:
			return nil
		}
		if len(stack) > MaxDepth {
			return fmt.Errorf("%w: %s", ErrTooDeep, strings.Join(append(stack, name), " -> "))
		}

		p, ok := l.paths[name]
		if !ok {
			return fmt.Errorf("%w: %s referenced by %s", ErrUnknownPath, name, stack[len(stack)-1])
		}

		state[name] = visiting
		for _, ref := range p.references() {
			if err := visit(ref, append(stack, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range l.Names() {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
