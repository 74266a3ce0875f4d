// Package dictionary loads the fixed word list used to validate submitted words.
package dictionary

import (
	"bufio"
	"log"
	"os"
	"strings"
)

// Dictionary is an immutable, case-insensitive word set.
type Dictionary struct {
	words map[string]struct{}
}

// Load reads a newline-delimited word list from path. Lines are trimmed,
// upper-cased, and dropped if shorter than two characters. A missing file
// is a valid degraded mode: Load returns an empty Dictionary and logs a
// warning rather than failing startup.
func Load(path string) (*Dictionary, error) {
	d := &Dictionary{words: make(map[string]struct{})}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("WARN: dictionary file %q not found, starting with an empty dictionary", path)
			return d, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		word := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if len(word) < 2 {
			continue
		}
		d.words[word] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(d.words) == 0 {
		log.Printf("WARN: dictionary file %q contained no usable words", path)
	}

	return d, nil
}

// Contains reports whether word (case-insensitive) is in the dictionary.
func (d *Dictionary) Contains(word string) bool {
	if d == nil {
		return false
	}
	_, ok := d.words[strings.ToUpper(strings.TrimSpace(word))]
	return ok
}

// Len returns the number of loaded words.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.words)
}
