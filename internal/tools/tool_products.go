package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/catalog"
)

// ProductCatalog is the product service surface behind the catalog tools.
type ProductCatalog interface {
	SearchProducts(ctx context.Context, q catalog.SearchQuery) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	GetInventory(ctx context.Context, id int64) (*catalog.Inventory, error)
}

// ProductSearchTool finds products by keyword and attribute filters.
type ProductSearchTool struct {
	cat ProductCatalog
}

// NewProductSearchTool creates the search_products tool. A nil catalog
// produces a not-configured result at call time.
func NewProductSearchTool(cat ProductCatalog) *ProductSearchTool {
	return &ProductSearchTool{cat: cat}
}

func (t *ProductSearchTool) Name() string { return "search_products" }

func (t *ProductSearchTool) Description() string {
	return "Search the product catalog by keywords, with optional color, theme, eco-friendliness and price filters. Returns matching products with IDs for follow-up lookups."
}

func (t *ProductSearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"keywords": {
				"type": "string",
				"description": "Search terms, e.g. \"water bottle\""
			},
			"color": {
				"type": "string",
				"description": "Filter by color"
			},
			"theme": {
				"type": "string",
				"description": "Filter by theme or style"
			},
			"envFriendly": {
				"type": "boolean",
				"description": "Only eco-friendly products when true"
			},
			"maxPrice": {
				"type": "number",
				"description": "Upper price bound"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of products (default 5, max 20)"
			}
		},
		"required": ["keywords"]
	}`)
}

func (t *ProductSearchTool) Kinds() KindSet { return AllKinds }

func (t *ProductSearchTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.cat == nil {
		return notConfiguredResult(call, "the product catalog"), nil
	}

	var args struct {
		Keywords    string  `json:"keywords"`
		Color       string  `json:"color"`
		Theme       string  `json:"theme"`
		EnvFriendly *bool   `json:"envFriendly"`
		MaxPrice    float64 `json:"maxPrice"`
		Limit       int     `json:"limit"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}
	if strings.TrimSpace(args.Keywords) == "" {
		return errorResultf(call, "keywords is required"), nil
	}

	products, err := t.cat.SearchProducts(ctx, catalog.SearchQuery{
		Keywords:    args.Keywords,
		Color:       args.Color,
		Theme:       args.Theme,
		EnvFriendly: args.EnvFriendly,
		MaxPrice:    args.MaxPrice,
		Limit:       args.Limit,
	})
	if err != nil {
		return errorResult(call, fmt.Errorf("product search failed: %w", err)), nil
	}
	if len(products) == 0 {
		return textResult(call, "no products matched; try broader keywords or fewer filters"), nil
	}

	var b strings.Builder
	for _, p := range products {
		fmt.Fprintf(&b, "#%d %s — %s", int64(p.ID), p.Name, p.Price.Format())
		if p.EnvFriendly {
			b.WriteString(" (eco-friendly)")
		}
		b.WriteString("\n")
		if p.Category != "" {
			fmt.Fprintf(&b, "   category: %s\n", p.Category)
		}
		if len(p.Colors) > 0 {
			fmt.Fprintf(&b, "   colors: %s\n", p.Colors.String())
		}
		if desc := Preview(p.Description, args.Keywords, 200); desc != "" {
			fmt.Fprintf(&b, "   %s\n", desc)
		}
	}
	return textResult(call, strings.TrimSpace(b.String())), nil
}

// ProductDetailsTool fetches one product by its numeric ID.
type ProductDetailsTool struct {
	cat ProductCatalog
}

// NewProductDetailsTool creates the get_product_details tool.
func NewProductDetailsTool(cat ProductCatalog) *ProductDetailsTool {
	return &ProductDetailsTool{cat: cat}
}

func (t *ProductDetailsTool) Name() string { return "get_product_details" }

func (t *ProductDetailsTool) Description() string {
	return "Get the full record for one product by its numeric ID, as returned by search_products."
}

func (t *ProductDetailsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"product_id": {
				"description": "The numeric product ID",
				"type": ["integer", "string"]
			}
		},
		"required": ["product_id"]
	}`)
}

func (t *ProductDetailsTool) Kinds() KindSet { return AllKinds }

func (t *ProductDetailsTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.cat == nil {
		return notConfiguredResult(call, "the product catalog"), nil
	}

	id, ok := parseProductID(call.Arguments)
	if !ok {
		return errorResultf(call, "product_id must be a numeric product ID, e.g. 42"), nil
	}

	p, err := t.cat.GetProduct(ctx, id)
	if err != nil {
		return errorResult(call, fmt.Errorf("product lookup failed: %w", err)), nil
	}
	return jsonResult(call, p), nil
}

// InventoryTool checks stock levels for one product.
type InventoryTool struct {
	cat ProductCatalog
}

// NewInventoryTool creates the check_inventory tool.
func NewInventoryTool(cat ProductCatalog) *InventoryTool {
	return &InventoryTool{cat: cat}
}

func (t *InventoryTool) Name() string { return "check_inventory" }

func (t *InventoryTool) Description() string {
	return "Check current stock for one product by its numeric ID, including the per-warehouse breakdown."
}

func (t *InventoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"product_id": {
				"description": "The numeric product ID",
				"type": ["integer", "string"]
			}
		},
		"required": ["product_id"]
	}`)
}

func (t *InventoryTool) Kinds() KindSet { return AllKinds }

func (t *InventoryTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.cat == nil {
		return notConfiguredResult(call, "the product catalog"), nil
	}

	id, ok := parseProductID(call.Arguments)
	if !ok {
		return errorResultf(call, "product_id must be a numeric product ID, e.g. 42"), nil
	}

	inv, err := t.cat.GetInventory(ctx, id)
	if err != nil {
		return errorResult(call, fmt.Errorf("inventory lookup failed: %w", err)), nil
	}

	var b strings.Builder
	if inv.InStock {
		fmt.Fprintf(&b, "product %d: in stock, %d units total\n", int64(inv.ProductID), inv.Quantity)
	} else {
		fmt.Fprintf(&b, "product %d: out of stock\n", int64(inv.ProductID))
	}
	for _, w := range inv.Warehouses {
		fmt.Fprintf(&b, "  %s: %d\n", w.Location, w.Quantity)
	}
	return textResult(call, strings.TrimSpace(b.String())), nil
}

// parseProductID extracts a strict numeric product ID from the call
// arguments. Models sometimes quote IDs, so "42" passes, but "SKU-42" or
// 4.5 are rejected before any upstream call.
func parseProductID(arguments string) (int64, bool) {
	var args struct {
		ProductID catalog.ID `json:"product_id"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return 0, false
	}
	if args.ProductID <= 0 {
		return 0, false
	}
	return int64(args.ProductID), true
}
