// Package citymap turns text city maps into traffic worlds.
package citymap

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

//go:embed symbols.yaml
var defaultSymbols []byte

// Kind is what a map symbol places on its cell.
type Kind string

const (
	KindRoad         Kind = "road"
	KindIntersection Kind = "intersection"
	KindLight        Kind = "light"
	KindObstacle     Kind = "obstacle"
	KindDestination  Kind = "destination"
	KindEmpty        Kind = "empty"
)

// Entry describes one map symbol.
type Entry struct {
	Kind       Kind     `yaml:"kind"`
	Directions []string `yaml:"directions,omitempty"`
	Period     int      `yaml:"period,omitempty"`
	Green      bool     `yaml:"green,omitempty"`
}

// Dictionary maps each single-character symbol to its meaning.
type Dictionary map[rune]Entry

// DefaultDictionary returns the built-in symbol set.
func DefaultDictionary() Dictionary {
	d, err := ParseDictionary(defaultSymbols)
	if err != nil {
		panic(fmt.Sprintf("citymap: embedded symbols: %v", err))
	}
	return d
}

// LoadDictionary reads a YAML or JSON dictionary file.
func LoadDictionary(filePath string) (Dictionary, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol dictionary: %w", err)
	}
	d, err := ParseDictionary(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return d, nil
}

// ParseDictionary accepts two shapes per symbol: a full entry mapping
// ({kind, directions, period, green}), or the compact form used by older
// city files where a bare direction is a road, a pair of directions an
// intersection, and [direction, period] a light that starts green when its
// symbol is lowercase.
func ParseDictionary(data []byte) (Dictionary, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse symbol dictionary: %w", err)
	}
	d := make(Dictionary, len(raw))
	for key, node := range raw {
		sym, size := utf8.DecodeRuneInString(key)
		if size == 0 || size != len(key) {
			return nil, fmt.Errorf("symbol %q must be a single character", key)
		}
		e, err := decodeEntry(sym, &node)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", key, err)
		}
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("symbol %q: %w", key, err)
		}
		d[sym] = e
	}
	return d, nil
}

func decodeEntry(sym rune, node *yaml.Node) (Entry, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var e Entry
		if err := node.Decode(&e); err != nil {
			return Entry{}, err
		}
		return e, nil
	case yaml.ScalarNode:
		switch strings.ToLower(node.Value) {
		case "obstacle":
			return Entry{Kind: KindObstacle}, nil
		case "destination":
			return Entry{Kind: KindDestination}, nil
		case "empty", "":
			return Entry{Kind: KindEmpty}, nil
		}
		return Entry{Kind: KindRoad, Directions: []string{node.Value}}, nil
	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			return Entry{}, fmt.Errorf("expected 2 items, got %d", len(node.Content))
		}
		first, second := node.Content[0], node.Content[1]
		if second.ShortTag() == "!!int" {
			var period int
			if err := second.Decode(&period); err != nil {
				return Entry{}, err
			}
			return Entry{
				Kind:       KindLight,
				Directions: []string{first.Value},
				Period:     period,
				Green:      unicode.IsLower(sym),
			}, nil
		}
		return Entry{Kind: KindIntersection, Directions: []string{first.Value, second.Value}}, nil
	}
	return Entry{}, fmt.Errorf("unsupported value")
}

func (e Entry) validate() error {
	want := 0
	switch e.Kind {
	case KindRoad, KindLight:
		want = 1
	case KindIntersection:
		want = 2
	case KindObstacle, KindDestination, KindEmpty:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if len(e.Directions) != want {
		return fmt.Errorf("%s needs %d directions, got %d", e.Kind, want, len(e.Directions))
	}
	if _, err := e.directions(); err != nil {
		return err
	}
	if e.Kind == KindLight && e.Period < 1 {
		return fmt.Errorf("light period must be >= 1, got %d", e.Period)
	}
	return nil
}

func (e Entry) directions() ([]traffic.Direction, error) {
	out := make([]traffic.Direction, 0, len(e.Directions))
	for _, s := range e.Directions {
		d, err := traffic.ParseDirection(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// apply writes the entry onto pos.
func (e Entry) apply(w *traffic.GridWorld, pos traffic.Coord) error {
	dirs, err := e.directions()
	if err != nil {
		return err
	}
	switch e.Kind {
	case KindRoad, KindIntersection:
		return w.SetRoad(pos, dirs...)
	case KindLight:
		if err := w.SetRoad(pos, dirs...); err != nil {
			return err
		}
		_, err := w.AddLight(pos, e.Period, e.Green, &dirs[0])
		return err
	case KindObstacle:
		return w.SetObstacle(pos)
	case KindDestination:
		return w.SetDestination(pos)
	}
	return nil
}
