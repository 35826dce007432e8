// Package catalog содержит справочники категорий отходов, предметов и наград.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/litterally/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrCategoryNotFound возвращается, если категория с указанным идентификатором отсутствует.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrItemNotFound возвращается, если предмет с указанным идентификатором отсутствует.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidCatalog возвращается, если данные справочника нарушают инварианты.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

type document struct {
	Categories []model.WasteCategory `yaml:"categories"`
	Items      []model.Item          `yaml:"items"`
	Badges     []model.Badge         `yaml:"badges"`
}

// Catalog хранит справочник, неизменяемый после загрузки. Все методы возвращают копии.
type Catalog struct {
	categories []model.WasteCategory
	items      []model.Item
	badges     []model.Badge

	categoryByID map[string]int
	itemByID     map[string]int
}

// Default загружает встроенный справочник.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile загружает справочник из YAML-файла.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML-документ справочника и проверяет его инварианты.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		categories: doc.Categories,
		items:      doc.Items,
		badges:     doc.Badges,
	}

	for i := range c.badges {
		threshold, err := ParseThreshold(c.badges[i].Name)
		if err != nil {
			return nil, fmt.Errorf("%w: badge %q: %v", ErrInvalidCatalog, c.badges[i].ID, err)
		}
		c.badges[i].Threshold = threshold
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// validate проверяет уникальность идентификаторов, разрешимость ссылок на категории
// и совпадение цвета контейнера, попутно строя индексы поиска. Вызывается только из Parse,
// после этого справочник не меняется.
func (c *Catalog) validate() error {
	c.categoryByID = make(map[string]int, len(c.categories))
	c.itemByID = make(map[string]int, len(c.items))

	if len(c.categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidCatalog)
	}

	for i, cat := range c.categories {
		if cat.ID == "" {
			return fmt.Errorf("%w: category #%d has empty id", ErrInvalidCatalog, i)
		}
		if _, dup := c.categoryByID[cat.ID]; dup {
			return fmt.Errorf("%w: duplicate category id %q", ErrInvalidCatalog, cat.ID)
		}
		if !cat.Kind.Valid() {
			return fmt.Errorf("%w: category %q has unknown kind %q", ErrInvalidCatalog, cat.ID, cat.Kind)
		}
		if !cat.BinColor.Valid() {
			return fmt.Errorf("%w: category %q has unknown bin color %q", ErrInvalidCatalog, cat.ID, cat.BinColor)
		}
		if len(cat.Items) == 0 {
			return fmt.Errorf("%w: category %q has no example items", ErrInvalidCatalog, cat.ID)
		}
		if len(cat.Quotes) == 0 {
			return fmt.Errorf("%w: category %q has no quotes", ErrInvalidCatalog, cat.ID)
		}
		if cat.ScanPoints < 0 {
			return fmt.Errorf("%w: category %q has negative scan points", ErrInvalidCatalog, cat.ID)
		}
		c.categoryByID[cat.ID] = i
	}

	for i, item := range c.items {
		if item.ID == "" {
			return fmt.Errorf("%w: item #%d has empty id", ErrInvalidCatalog, i)
		}
		if _, dup := c.itemByID[item.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidCatalog, item.ID)
		}
		idx, ok := c.categoryByID[item.CategoryID]
		if !ok {
			return fmt.Errorf("%w: item %q references unknown category %q", ErrInvalidCatalog, item.ID, item.CategoryID)
		}
		cat := c.categories[idx]
		if item.BinColor != cat.BinColor {
			return fmt.Errorf("%w: item %q bin color %q differs from category %q (%q)",
				ErrInvalidCatalog, item.ID, item.BinColor, cat.ID, cat.BinColor)
		}
		if item.Category != cat.Kind {
			return fmt.Errorf("%w: item %q category %q differs from category %q kind %q",
				ErrInvalidCatalog, item.ID, item.Category, cat.ID, cat.Kind)
		}
		if item.Points < 0 {
			return fmt.Errorf("%w: item %q has negative points", ErrInvalidCatalog, item.ID)
		}
		if len(item.Tips) == 0 {
			return fmt.Errorf("%w: item %q has no tips", ErrInvalidCatalog, item.ID)
		}
		c.itemByID[item.ID] = i
	}

	if len(c.items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidCatalog)
	}

	seen := make(map[string]struct{}, len(c.badges))
	for _, b := range c.badges {
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("%w: duplicate badge id %q", ErrInvalidCatalog, b.ID)
		}
		seen[b.ID] = struct{}{}
	}

	return nil
}

// ParseThreshold извлекает порог очков из имени награды вида "50 XP: Trash Panda".
func ParseThreshold(name string) (int, error) {
	prefix, _, found := strings.Cut(name, "XP")
	if !found {
		return 0, fmt.Errorf("no XP threshold in %q", name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(prefix))
	if err != nil {
		return 0, fmt.Errorf("parse threshold in %q: %w", name, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative threshold in %q", name)
	}
	return n, nil
}

// Categories возвращает все категории в порядке справочника.
func (c *Catalog) Categories() []model.WasteCategory {
	res := make([]model.WasteCategory, 0, len(c.categories))
	for _, cat := range c.categories {
		res = append(res, cloneCategory(cat))
	}
	return res
}

// Category возвращает категорию по идентификатору.
func (c *Catalog) Category(id string) (model.WasteCategory, error) {
	idx, ok := c.categoryByID[id]
	if !ok {
		return model.WasteCategory{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	return cloneCategory(c.categories[idx]), nil
}

// CategoryOf возвращает категорию, к которой относится предмет.
func (c *Catalog) CategoryOf(item model.Item) (model.WasteCategory, error) {
	return c.Category(item.CategoryID)
}

// Items возвращает все предметы в порядке справочника.
func (c *Catalog) Items() []model.Item {
	res := make([]model.Item, 0, len(c.items))
	for _, item := range c.items {
		res = append(res, CloneItem(item))
	}
	return res
}

// Item возвращает предмет по идентификатору.
func (c *Catalog) Item(id string) (model.Item, error) {
	idx, ok := c.itemByID[id]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return CloneItem(c.items[idx]), nil
}

// Badges возвращает лестницу наград без признака разблокировки.
func (c *Catalog) Badges() []model.Badge {
	res := make([]model.Badge, len(c.badges))
	copy(res, c.badges)
	return res
}

func cloneCategory(cat model.WasteCategory) model.WasteCategory {
	cat.Items = append([]string(nil), cat.Items...)
	cat.Quotes = append([]string(nil), cat.Quotes...)
	return cat
}

// CloneItem возвращает копию предмета, не разделяющую срез советов с исходным.
func CloneItem(item model.Item) model.Item {
	item.Tips = append([]string(nil), item.Tips...)
	return item
}
