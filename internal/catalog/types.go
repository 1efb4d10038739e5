// Package catalog wraps the product catalog HTTP API. The upstream mixes
// scalar and array shapes for the same logical fields across endpoints, so
// every varying shape is normalized here at the client boundary and callers
// see exactly one representation.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a numeric product identifier. It unmarshals from a JSON number or a
// string of digits; anything else is rejected before it can reach the
// upstream API.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("product id must be a non-negative number, got %s", strings.TrimSpace(string(data)))
	}
	*id = ID(n)
	return nil
}

// FlexStrings normalizes fields the upstream returns as either a single
// string or an array of strings.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = nil
		} else {
			*f = FlexStrings{s}
		}
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = FlexStrings(arr)
		return nil
	}

	return fmt.Errorf("expected string or array of strings, got %s", data)
}

// String joins the values for display.
func (f FlexStrings) String() string {
	return strings.Join(f, ", ")
}

// FlexPrice normalizes price fields that arrive as a number, a numeric
// string (optionally prefixed with a currency symbol), or a single-element
// array of either.
type FlexPrice float64

func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*p = 0
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = FlexPrice(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "$€£"))
		if s == "" {
			*p = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("cannot parse price %q", s)
		}
		*p = FlexPrice(parsed)
		return nil
	}

	var arr []FlexPrice
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 {
			*p = 0
		} else {
			*p = arr[0]
		}
		return nil
	}

	return fmt.Errorf("unsupported price shape: %s", data)
}

// Format renders the price for display.
func (p FlexPrice) Format() string {
	if p == 0 {
		return "n/a"
	}
	return fmt.Sprintf("$%.2f", float64(p))
}

// Product is one catalog entry with all field shapes normalized.
type Product struct {
	ID          ID          `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       FlexPrice   `json:"price"`
	Colors      FlexStrings `json:"color"`
	Themes      FlexStrings `json:"theme"`
	EnvFriendly bool        `json:"envFriendly"`
	Category    string      `json:"category"`
	ImageURL    string      `json:"imageUrl"`
}

// Inventory is the stock state for one product.
type Inventory struct {
	ProductID  ID               `json:"productId"`
	InStock    bool             `json:"inStock"`
	Quantity   int              `json:"quantity"`
	Warehouses []WarehouseStock `json:"warehouses"`
}

// WarehouseStock is the per-location stock breakdown.
type WarehouseStock struct {
	Location string `json:"location"`
	Quantity int    `json:"quantity"`
}

// SearchQuery describes one product search.
type SearchQuery struct {
	Keywords    string
	Color       string
	Theme       string
	EnvFriendly *bool   // nil = no filter
	MaxPrice    float64 // 0 = no bound
	Limit       int
}
