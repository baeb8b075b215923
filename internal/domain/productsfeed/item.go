package productsfeed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
)

// GoogleCategoryMetadataKey is the category metadata key holding the Google product category id.
const GoogleCategoryMetadataKey = "google_category_id"

// Availability values of g:availability
const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
)

// Item is one <item> of a Google Merchant feed.
type Item struct {
	ID                    string `xml:"g:id"`
	ItemGroupID           string `xml:"g:item_group_id"`
	Title                 string `xml:"title"`
	Description           string `xml:"g:description,omitempty"`
	Link                  string `xml:"link"`
	ImageLink             string `xml:"g:image_link,omitempty"`
	Condition             string `xml:"g:condition"`
	Availability          string `xml:"g:availability"`
	Price                 string `xml:"g:price"`
	GoogleProductCategory string `xml:"g:google_product_category,omitempty"`
	Brand                 string `xml:"g:brand,omitempty"`
	Color                 string `xml:"g:color,omitempty"`
	Size                  string `xml:"g:size,omitempty"`
	Material              string `xml:"g:material,omitempty"`
	Pattern               string `xml:"g:pattern,omitempty"`
	GTIN                  string `xml:"g:gtin,omitempty"`
	ShippingLabel         string `xml:"g:shipping_label,omitempty"`
}

// ItemBuilder turns variants into feed items with compiled templates.
type ItemBuilder struct {
	title   *raymond.Template
	link    *raymond.Template
	mapping AttributeMapping
}

// NewItemBuilder compiles the title and product URL templates.
func NewItemBuilder(titleTemplate, productURLTemplate string, mapping AttributeMapping) (*ItemBuilder, error) {
	title, err := raymond.Parse(titleTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTitleTemplate, err)
	}
	link, err := raymond.Parse(productURLTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChannels, err)
	}
	return &ItemBuilder{title: title, link: link, mapping: mapping}, nil
}

// Build maps a variant. ok is false for variants without a price, which
// Google rejects.
func (b *ItemBuilder) Build(v saleor.ProductVariant) (item Item, ok bool, err error) {
	if v.Product == nil || v.Pricing == nil || v.Pricing.Price.Gross.Currency == "" {
		return Item{}, false, nil
	}
	product := v.Product

	ctx, err := templateContext(v)
	if err != nil {
		return Item{}, false, err
	}
	title, err := b.title.Exec(ctx)
	if err != nil {
		return Item{}, false, fmt.Errorf("render title: %w", err)
	}
	link, err := b.link.Exec(ctx)
	if err != nil {
		return Item{}, false, fmt.Errorf("render link: %w", err)
	}

	item = Item{
		ID:           v.ID,
		ItemGroupID:  product.ID,
		Title:        strings.TrimSpace(title),
		Description:  product.SEODescription,
		Link:         strings.TrimSpace(link),
		ImageLink:    imageLink(v),
		Condition:    "new",
		Availability: AvailabilityOutOfStock,
		Price:        formatPrice(v.Pricing.Price.Gross),
	}
	if v.SKU != "" {
		item.ID = v.SKU
	}
	if v.InStock() {
		item.Availability = AvailabilityInStock
	}
	if product.Category != nil {
		item.GoogleProductCategory = googleCategory(product.Category)
	}

	attrs := [][]saleor.SelectedAttribute{v.Attributes, product.Attributes}
	item.Brand = saleor.AttributeValues(b.mapping.BrandAttributeIDs, attrs...)
	item.Color = saleor.AttributeValues(b.mapping.ColorAttributeIDs, attrs...)
	item.Size = saleor.AttributeValues(b.mapping.SizeAttributeIDs, attrs...)
	item.Material = saleor.AttributeValues(b.mapping.MaterialAttributeIDs, attrs...)
	item.Pattern = saleor.AttributeValues(b.mapping.PatternAttributeIDs, attrs...)
	item.GTIN = saleor.AttributeValues(b.mapping.GTINAttributeIDs, attrs...)
	item.ShippingLabel = saleor.AttributeValues(b.mapping.ShippingLabelAttributeIDs, attrs...)
	return item, true, nil
}

// templateContext exposes the variant under its GraphQL field names.
func templateContext(v saleor.ProductVariant) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var variant map[string]any
	if err := json.Unmarshal(raw, &variant); err != nil {
		return nil, err
	}
	return map[string]any{"variant": variant}, nil
}

func imageLink(v saleor.ProductVariant) string {
	if len(v.Media) > 0 && v.Media[0].URL != "" {
		return v.Media[0].URL
	}
	if v.Product.Thumbnail != nil {
		return v.Product.Thumbnail.URL
	}
	return ""
}

func formatPrice(m saleor.Money) string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// googleCategory returns the closest category id, walking up the parents.
func googleCategory(c *saleor.Category) string {
	for ; c != nil; c = c.Parent {
		if id := saleor.MetadataValue(c.Metadata, GoogleCategoryMetadataKey); id != "" {
			return id
		}
	}
	return ""
}
