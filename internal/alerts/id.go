package alerts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adhanbot/internal/prayer"
)

// Prefix marks every alert id owned by adhanbot.
const Prefix = "adhanbot"

type Category string

const (
	CategoryPrayer  Category = "prayer"
	CategoryWeekly  Category = "weekly"
	CategoryFasting Category = "fasting"
)

func (c Category) order() int {
	switch c {
	case CategoryPrayer:
		return 0
	case CategoryWeekly:
		return 1
	case CategoryFasting:
		return 2
	default:
		return 3
	}
}

// ID is the structured alert identifier. String is its only serialization.
type ID struct {
	Prefix   string
	Category Category
	Kind     prayer.Kind
	At       time.Time
}

// label is the kind name for prayer alerts and the category name otherwise.
func (id ID) label() string {
	if id.Category == CategoryPrayer {
		return id.Kind.String()
	}
	return string(id.Category)
}

func (id ID) prefix() string {
	if id.Prefix == "" {
		return Prefix
	}
	return id.Prefix
}

func (id ID) String() string {
	return id.prefix() + "_" + id.label() + "_" + strconv.FormatInt(id.At.Unix(), 10)
}

var ErrForeignID = errors.New("alerts: id does not carry the prefix")

// ParseID is the inverse of ID.String for ids carrying prefix.
func ParseID(prefix, s string) (ID, error) {
	if prefix == "" {
		prefix = Prefix
	}
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return ID{}, fmt.Errorf("%w: %q", ErrForeignID, s)
	}
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return ID{}, fmt.Errorf("alerts: malformed id %q", s)
	}
	label, epoch := rest[:i], rest[i+1:]
	sec, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("alerts: malformed epoch in %q: %w", s, err)
	}
	id := ID{Prefix: prefix, At: time.Unix(sec, 0)}
	switch Category(label) {
	case CategoryWeekly:
		id.Category, id.Kind = CategoryWeekly, prayer.Dhuhr
	case CategoryFasting:
		id.Category, id.Kind = CategoryFasting, prayer.Imsak
	default:
		k, err := prayer.ParseKind(label)
		if err != nil {
			return ID{}, fmt.Errorf("alerts: %w", err)
		}
		id.Category, id.Kind = CategoryPrayer, k
	}
	return id, nil
}
