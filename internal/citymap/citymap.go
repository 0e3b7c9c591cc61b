package citymap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

// Parse reads a text map, one row per line with the top row first, and
// builds the world it describes. Blank lines are skipped; every other row
// must have the same width.
func Parse(r io.Reader, dict Dictionary) (*traffic.GridWorld, error) {
	var rows []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rows = append(rows, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read map: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("map has no rows: %w", traffic.ErrMalformedLayout)
	}

	width := utf8.RuneCountInString(rows[0])
	height := len(rows)
	w, err := traffic.NewGridWorld(width, height)
	if err != nil {
		return nil, err
	}
	for r, row := range rows {
		if n := utf8.RuneCountInString(row); n != width {
			return nil, fmt.Errorf("row %d has width %d, expected %d: %w", r, n, width, traffic.ErrMalformedLayout)
		}
		y := height - r - 1
		x := 0
		for _, sym := range row {
			e, ok := dict[sym]
			if !ok {
				return nil, fmt.Errorf("unknown symbol %q at row %d col %d: %w", sym, r, x, traffic.ErrMalformedLayout)
			}
			if err := e.apply(w, traffic.C(x, y)); err != nil {
				return nil, fmt.Errorf("symbol %q at row %d col %d: %w", sym, r, x, err)
			}
			x++
		}
	}
	return w, nil
}

// Load reads a map file. An empty dictPath selects DefaultDictionary.
func Load(mapPath, dictPath string) (*traffic.GridWorld, error) {
	dict := DefaultDictionary()
	if dictPath != "" {
		d, err := LoadDictionary(dictPath)
		if err != nil {
			return nil, err
		}
		dict = d
	}
	f, err := os.Open(mapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open map: %w", err)
	}
	defer f.Close()
	w, err := Parse(f, dict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mapPath, err)
	}
	return w, nil
}
