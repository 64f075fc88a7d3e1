// internal/template/generate.go
package template

import (
	"fmt"
	"strings"
)

// Starter kinds understood by Starter.
const (
	StarterBasic     = "basic"
	StarterListing   = "listing"
	StarterDirectory = "directory"
)

// Starter returns a ready-to-edit template of the named kind: basic for a
// single-record page, listing for a repeating container with pagination,
// or directory for a listing whose records continue on profile subpages.
// The empty kind means basic.
func Starter(kind string) (*Template, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", StarterBasic:
		return starterBasic(), nil
	case StarterListing:
		return starterListing(), nil
	case StarterDirectory:
		return starterDirectory(), nil
	default:
		return nil, fmt.Errorf("unknown template kind %q (want basic, listing, or directory)", kind)
	}
}

func starterBasic() *Template {
	return &Template{
		Name:        "basic",
		Description: "Single-record page: each field is extracted once per URL",
		URL:         "https://example.com/article/123",
		Fields: []FieldSpec{
			{
				Label:    "title",
				Selector: "h1",
				Required: true,
				Transforms: []TransformSpec{
					{Type: "trim"},
					{Type: "normalize_spaces"},
				},
			},
			{
				Label:    "published",
				Selector: "time, .date, .published",
				Transforms: []TransformSpec{
					{Type: "trim"},
					{Type: "parse_date"},
				},
			},
			{
				Label:    "body",
				Selector: "article, .content, #main",
				Transforms: []TransformSpec{
					{Type: "trim"},
				},
			},
		},
		Output: &OutputSpec{Format: "json", Path: "article.json"},
	}
}

func starterListing() *Template {
	return &Template{
		Name:        "listing",
		Description: "Paginated listing: one record per container match",
		URL:         "https://shop.example.com/catalog",
		Container: &ContainerSpec{
			Selector: ".product-card, .product, li.item",
			SubFields: []FieldSpec{
				{
					Label:    "name",
					Selector: "h2, .product-title, .name",
					Required: true,
					Transforms: []TransformSpec{
						{Type: "trim"},
						{Type: "normalize_spaces"},
					},
				},
				{
					Label:    "price",
					Selector: ".price, .amount",
					Transforms: []TransformSpec{
						{Type: "trim"},
						{Type: "regex", Pattern: `[^0-9]*([0-9][0-9,.]*).*`, Replacement: "$1"},
						{Type: "parse_float"},
					},
				},
				{
					Label:         "image",
					Selector:      "img",
					ValueKind:     ValueKindAttribute,
					AttributeName: "src",
				},
			},
		},
		Pagination: &PaginationSpec{
			Kind:         PaginationButton,
			NextSelector: `a[rel="next"], .pagination .next, a.next-page`,
			MaxPages:     10,
		},
		Output: &OutputSpec{Format: "csv", Path: "catalog.csv"},
	}
}

func starterDirectory() *Template {
	return &Template{
		Name:              "directory",
		Description:       "Listing plus profile subpages: listing values seed each record, subpage values complete it",
		URL:               "https://directory.example.com/members?page=1",
		MaxSubpages:       50,
		SubpageURLPattern: "/members/",
		Container: &ContainerSpec{
			Selector: ".member-card, .result",
			SubFields: []FieldSpec{
				{
					Label:    "name",
					Selector: "h3, .member-name",
					Required: true,
					Transforms: []TransformSpec{
						{Type: "trim"},
						{Type: "normalize_spaces"},
					},
				},
				{
					Label:    "title",
					Selector: ".role, .title",
					Transforms: []TransformSpec{
						{Type: "trim"},
						{Type: "normalize_spaces"},
					},
				},
				{
					Label:    "city",
					Selector: ".location, .city",
					Transforms: []TransformSpec{
						{Type: "trim"},
					},
				},
			},
			FollowLinks: true,
			SubpageFields: []FieldSpec{
				{
					Label:    "phone",
					Selector: `a[href^="tel:"], .phone`,
					Transforms: []TransformSpec{
						{Type: "trim"},
					},
				},
				{
					Label:         "email",
					Selector:      `a[href^="mailto:"]`,
					ValueKind:     ValueKindAttribute,
					AttributeName: "href",
					Transforms: []TransformSpec{
						{Type: "replace", Pattern: "mailto:", Replacement: ""},
					},
				},
				{
					Label:    "services",
					Selector: ".services li",
					Multiple: true,
					Transforms: []TransformSpec{
						{Type: "trim"},
					},
				},
			},
		},
		Pagination: &PaginationSpec{
			Kind:       PaginationURLPattern,
			URLPattern: "https://directory.example.com/members?page={page}",
			StartPage:  1,
			MaxPages:   20,
		},
		Filters: []FilterRule{
			{Field: "name", Op: FilterOpNotEmpty},
		},
		Output: &OutputSpec{Format: "sqlite", Path: "members.db", Table: "members"},
	}
}
