package tree

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gridexplore/explorer/pkg/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// A collate.Collator keeps scratch buffers, so each caller borrows one.
var (
	collatorMu   sync.RWMutex
	collatorTag  = language.English
	collatorPool = newCollatorPool(collatorTag)
)

func newCollatorPool(tag language.Tag) *sync.Pool {
	return &sync.Pool{
		New: func() any { return collate.New(tag) },
	}
}

// SetCollationLocale selects the locale used to order sibling directories.
// It is meant to be called once at startup; the default is English.
func SetCollationLocale(locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("parse locale %q: %w", locale, err)
	}
	collatorMu.Lock()
	collatorTag = tag
	collatorPool = newCollatorPool(tag)
	collatorMu.Unlock()
	return nil
}

// CollationLocale returns the locale siblings are currently ordered by.
func CollationLocale() string {
	collatorMu.RLock()
	defer collatorMu.RUnlock()
	return collatorTag.String()
}

func borrowCollator() (*collate.Collator, func()) {
	collatorMu.RLock()
	pool := collatorPool
	collatorMu.RUnlock()
	c := pool.Get().(*collate.Collator)
	return c, func() { pool.Put(c) }
}

// CompareNames orders two element names the way the explorer lists them.
func CompareNames(a, b string) int {
	c, release := borrowCollator()
	defer release()
	return c.CompareString(a, b)
}

// SortByName sorts nodes in place by ElementName. Equal names keep their
// input order.
func SortByName(nodes []*models.DirectoryNode) {
	c, release := borrowCollator()
	defer release()
	slices.SortStableFunc(nodes, func(a, b *models.DirectoryNode) int {
		return c.CompareString(a.ElementName, b.ElementName)
	})
}

// IsSortedByName reports whether nodes are in display order.
func IsSortedByName(nodes []*models.DirectoryNode) bool {
	c, release := borrowCollator()
	defer release()
	return slices.IsSortedFunc(nodes, func(a, b *models.DirectoryNode) int {
		return c.CompareString(a.ElementName, b.ElementName)
	})
}
