// Package catalog is the fixed set of validated SQL master templates and the
// query library that groups them for selection.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/xaenox/pocheck/internal/params"
)

//go:embed templates.yaml
var defaultDocument []byte

// Template is a SQL statement with placeholder tokens.
type Template struct {
	ID  string
	SQL string
}

// Item is a library entry: a template plus the question shown to the user
// and the canned prompt sent when it is selected.
type Item struct {
	ID       string `yaml:"id"`
	Question string `yaml:"question"`
	Prompt   string `yaml:"prompt"`
	SQL      string `yaml:"sql"`
}

type Category struct {
	Name  string `yaml:"name"`
	Icon  string `yaml:"icon"`
	Items []Item `yaml:"items"`
}

type document struct {
	Categories []Category `yaml:"categories"`
}

// Catalog is immutable once loaded.
type Catalog struct {
	categories []Category
	items      map[string]Item
}

var tokenPattern = regexp.MustCompile(`@[A-Za-z]+`)

// Default parses the embedded template document.
func Default() (*Catalog, error) {
	return parse(defaultDocument)
}

// LoadFile parses a template document from path, or returns the embedded
// catalog when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		categories: doc.Categories,
		items:      make(map[string]Item),
	}
	for _, cat := range doc.Categories {
		for _, item := range cat.Items {
			if err := validate(item); err != nil {
				return nil, err
			}
			if _, dup := c.items[item.ID]; dup {
				return nil, fmt.Errorf("duplicate template id %q", item.ID)
			}
			c.items[item.ID] = item
		}
	}
	if len(c.items) == 0 {
		return nil, errors.New("catalog has no templates")
	}
	return c, nil
}

func validate(item Item) error {
	if item.ID == "" {
		return errors.New("template with empty id")
	}
	if item.SQL == "" {
		return fmt.Errorf("template %q has no sql", item.ID)
	}
	for _, tok := range tokenPattern.FindAllString(item.SQL, -1) {
		if !params.IsToken(tok) {
			return fmt.Errorf("template %q uses unknown token %s", item.ID, tok)
		}
	}
	return nil
}

// Lookup is an exact, case-sensitive match on the template id.
func (c *Catalog) Lookup(id string) (Template, bool) {
	item, ok := c.items[id]
	if !ok {
		return Template{}, false
	}
	return Template{ID: item.ID, SQL: item.SQL}, true
}

// Item returns the library entry for id.
func (c *Catalog) Item(id string) (Item, bool) {
	item, ok := c.items[id]
	return item, ok
}

// Categories returns the library in display order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{Name: cat.Name, Icon: cat.Icon, Items: append([]Item(nil), cat.Items...)}
	}
	return out
}

// IDs returns every template id, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Catalog) Len() int { return len(c.items) }
