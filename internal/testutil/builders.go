package testutil

import (
	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/listing"
	"github.com/target/jobsync/internal/domain/model"
)

// ListingBuilder provides a fluent interface for building raw listings for testing.
type ListingBuilder struct {
	data map[string]any
}

// NewListing creates a ListingBuilder with the three identifier fields set.
func NewListing(reqID, title, streetAddress string) *ListingBuilder {
	return &ListingBuilder{data: map[string]any{
		model.FieldReqID:         reqID,
		model.FieldTitle:         title,
		model.FieldStreetAddress: streetAddress,
		"city":                   "Minneapolis",
		"country_code":           "US",
		"languages":              []any{"en-us"},
	}}
}

// With sets an arbitrary data field.
func (b *ListingBuilder) With(key string, value any) *ListingBuilder {
	b.data[key] = value
	return b
}

// Raw returns the raw listing.
func (b *ListingBuilder) Raw() model.RawListing {
	data := make(map[string]any, len(b.data))
	for k, v := range b.data {
		data[k] = v
	}
	return model.RawListing{"data": data}
}

// ID returns the identifier the builder's listing maps to.
func (b *ListingBuilder) ID() model.Identifier {
	return listing.IdentifierOf(b.data)
}

// Listing is shorthand for NewListing(reqID, title, street).Raw().
func Listing(reqID, title, streetAddress string) model.RawListing {
	return NewListing(reqID, title, streetAddress).Raw()
}

// ListingID is shorthand for NewListing(reqID, title, street).ID().
func ListingID(reqID, title, streetAddress string) model.Identifier {
	return NewListing(reqID, title, streetAddress).ID()
}

// PageOf builds a numbered page.
func PageOf(number int, listings ...model.RawListing) core.Page {
	return core.Page{Number: number, Listings: listings}
}
