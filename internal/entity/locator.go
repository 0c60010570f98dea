package entity

import (
	"fmt"
	"strings"
)

// Key field names. They resolve against the Locator rather than the body.
const (
	KeyPartition = "PartitionKey"
	KeyRow       = "RowKey"
	KeyName      = "Name"
)

// Locator is an entity's address in a store.
//
// Table-shaped entities use PartitionKey and RowKey; blob-shaped entities
// use Name. The unused half is empty.
type Locator struct {
	PartitionKey string `json:"partition_key,omitempty" yaml:"partition_key,omitempty"`
	RowKey       string `json:"row_key,omitempty" yaml:"row_key,omitempty"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
}

// TableLocator returns the locator of a table-shaped entity.
func TableLocator(partitionKey, rowKey string) Locator {
	return Locator{PartitionKey: partitionKey, RowKey: rowKey}
}

// BlobLocator returns the locator of a blob-shaped entity.
func BlobLocator(name string) Locator {
	return Locator{Name: name}
}

// String renders "pk/rk" for table locators and the name for blob locators.
func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	return l.PartitionKey + "/" + l.RowKey
}

// IsZero reports whether no key part is set.
func (l Locator) IsZero() bool {
	return l == Locator{}
}

// Key returns the value of a key field ("PartitionKey", "RowKey", "Name").
func (l Locator) Key(field string) (string, bool) {
	switch field {
	case KeyPartition:
		return l.PartitionKey, true
	case KeyRow:
		return l.RowKey, true
	case KeyName:
		return l.Name, true
	}
	return "", false
}

// ParseLocator parses the String form of a locator for the given shape.
// Partition keys may not contain "/"; row keys may.
func ParseLocator(shape Shape, s string) (Locator, error) {
	switch shape {
	case ShapeBlob:
		if s == "" {
			return Locator{}, fmt.Errorf("empty blob name")
		}
		return BlobLocator(s), nil
	case ShapeTable:
		pk, rk, ok := strings.Cut(s, "/")
		if !ok || pk == "" || rk == "" {
			return Locator{}, fmt.Errorf("table locator %q: want partition/row", s)
		}
		return TableLocator(pk, rk), nil
	default:
		return Locator{}, fmt.Errorf("unknown shape %q", shape)
	}
}

// Validate checks that the locator matches the shape.
func (l Locator) Validate(shape Shape) error {
	switch shape {
	case ShapeTable:
		if l.PartitionKey == "" || l.RowKey == "" || l.Name != "" {
			return fmt.Errorf("table locator requires partition and row key only, got %+v", l)
		}
		if strings.Contains(l.PartitionKey, "/") {
			return fmt.Errorf("partition key %q may not contain '/'", l.PartitionKey)
		}
	case ShapeBlob:
		if l.Name == "" || l.PartitionKey != "" || l.RowKey != "" {
			return fmt.Errorf("blob locator requires a name only, got %+v", l)
		}
	default:
		return fmt.Errorf("unknown shape %q", shape)
	}
	return nil
}
