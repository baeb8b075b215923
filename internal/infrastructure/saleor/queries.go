package saleor

import (
	"context"
	"fmt"

	domain "github.com/trieb-work/saleor-apps/internal/domain/saleor"
)

const fetchAppIDQuery = `query FetchAppId {
  app {
    id
  }
}`

// FetchAppID returns the id of the app the token belongs to.
func (c *Client) FetchAppID(ctx context.Context) (string, error) {
	var out struct {
		App *struct {
			ID string `json:"id"`
		} `json:"app"`
	}
	if err := c.Do(ctx, fetchAppIDQuery, nil, &out); err != nil {
		return "", err
	}
	if out.App == nil || out.App.ID == "" {
		return "", fmt.Errorf("saleor: app id missing in response")
	}
	return out.App.ID, nil
}

const fetchChannelsQuery = `query FetchChannels {
  channels {
    id
    slug
    name
    currencyCode
  }
}`

// FetchChannels lists every channel of the instance.
func (c *Client) FetchChannels(ctx context.Context) ([]domain.Channel, error) {
	var out struct {
		Channels []domain.Channel `json:"channels"`
	}
	if err := c.Do(ctx, fetchChannelsQuery, nil, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

const fetchPrivateMetadataQuery = `query FetchAppPrivateMetadata {
  app {
    id
    privateMetadata {
      key
      value
    }
  }
}`

// FetchPrivateMetadata returns the app id and its private metadata.
func (c *Client) FetchPrivateMetadata(ctx context.Context) (string, []domain.MetadataItem, error) {
	var out struct {
		App *struct {
			ID              string                `json:"id"`
			PrivateMetadata []domain.MetadataItem `json:"privateMetadata"`
		} `json:"app"`
	}
	if err := c.Do(ctx, fetchPrivateMetadataQuery, nil, &out); err != nil {
		return "", nil, err
	}
	if out.App == nil {
		return "", nil, fmt.Errorf("saleor: app missing in response")
	}
	return out.App.ID, out.App.PrivateMetadata, nil
}

const updatePrivateMetadataMutation = `mutation UpdateAppPrivateMetadata($id: ID!, $input: [MetadataInput!]!) {
  updatePrivateMetadata(id: $id, input: $input) {
    item {
      privateMetadata {
        key
        value
      }
    }
    errors {
      field
      message
      code
    }
  }
}`

// UpdatePrivateMetadata upserts entries and returns the resulting metadata.
func (c *Client) UpdatePrivateMetadata(ctx context.Context, appID string, items []domain.MetadataItem) ([]domain.MetadataItem, error) {
	var out struct {
		UpdatePrivateMetadata struct {
			Item *struct {
				PrivateMetadata []domain.MetadataItem `json:"privateMetadata"`
			} `json:"item"`
			Errors []MutationError `json:"errors"`
		} `json:"updatePrivateMetadata"`
	}
	if err := c.Do(ctx, updatePrivateMetadataMutation, map[string]any{"id": appID, "input": items}, &out); err != nil {
		return nil, err
	}
	if err := mutationErrors(out.UpdatePrivateMetadata.Errors); err != nil {
		return nil, err
	}
	if out.UpdatePrivateMetadata.Item == nil {
		return nil, nil
	}
	return out.UpdatePrivateMetadata.Item.PrivateMetadata, nil
}

const deletePrivateMetadataMutation = `mutation DeleteAppPrivateMetadata($id: ID!, $keys: [String!]!) {
  deletePrivateMetadata(id: $id, keys: $keys) {
    errors {
      field
      message
      code
    }
  }
}`

// DeletePrivateMetadata removes keys from the app private metadata.
func (c *Client) DeletePrivateMetadata(ctx context.Context, appID string, keys []string) error {
	var out struct {
		DeletePrivateMetadata struct {
			Errors []MutationError `json:"errors"`
		} `json:"deletePrivateMetadata"`
	}
	if err := c.Do(ctx, deletePrivateMetadataMutation, map[string]any{"id": appID, "keys": keys}, &out); err != nil {
		return err
	}
	return mutationErrors(out.DeletePrivateMetadata.Errors)
}

const transactionEventReportMutation = `mutation TransactionEventReport(
  $id: ID!
  $type: TransactionEventTypeEnum!
  $amount: PositiveDecimal!
  $pspReference: String!
  $message: String
  $externalUrl: String
  $time: DateTime
  $availableActions: [TransactionActionEnum!]
) {
  transactionEventReport(
    id: $id
    type: $type
    amount: $amount
    pspReference: $pspReference
    message: $message
    externalUrl: $externalUrl
    time: $time
    availableActions: $availableActions
  ) {
    alreadyProcessed
    errors {
      field
      message
      code
    }
  }
}`

// TransactionEventReport reports a payment event. It returns whether Saleor
// had already processed the same event.
func (c *Client) TransactionEventReport(ctx context.Context, in domain.TransactionEventReportInput) (bool, error) {
	vars := map[string]any{
		"id":           in.TransactionID,
		"type":         in.Type,
		"amount":       in.Amount,
		"pspReference": in.PSPReference,
	}
	if in.Message != "" {
		vars["message"] = in.Message
	}
	if in.ExternalURL != "" {
		vars["externalUrl"] = in.ExternalURL
	}
	if in.Time != "" {
		vars["time"] = in.Time
	}
	if len(in.AvailableActions) > 0 {
		vars["availableActions"] = in.AvailableActions
	}

	var out struct {
		TransactionEventReport struct {
			AlreadyProcessed bool            `json:"alreadyProcessed"`
			Errors           []MutationError `json:"errors"`
		} `json:"transactionEventReport"`
	}
	if err := c.Do(ctx, transactionEventReportMutation, vars, &out); err != nil {
		return false, err
	}
	if err := mutationErrors(out.TransactionEventReport.Errors); err != nil {
		return false, err
	}
	return out.TransactionEventReport.AlreadyProcessed, nil
}

const fetchProductVariantsQuery = `query FetchProductVariants($channel: String!, $first: Int!, $after: String, $imageSize: Int) {
  productVariants(first: $first, after: $after, channel: $channel) {
    pageInfo {
      hasNextPage
      endCursor
    }
    edges {
      node {
        id
        name
        sku
        quantityAvailable
        attributes {
          attribute { id name slug }
          values { name slug }
        }
        pricing {
          price {
            gross { amount currency }
            net { amount currency }
          }
        }
        product {
          id
          name
          slug
          seoDescription
          thumbnail(size: $imageSize) { url alt }
          category { id name slug metadata { key value } }
          attributes {
            attribute { id name slug }
            values { name slug }
          }
        }
      }
    }
  }
}`

// VariantsPage is one page of product variants.
type VariantsPage struct {
	Variants    []domain.ProductVariant
	HasNextPage bool
	EndCursor   string
}

// FetchProductVariants returns one page of variants available in channel.
func (c *Client) FetchProductVariants(ctx context.Context, channel, after string, first, imageSize int) (*VariantsPage, error) {
	vars := map[string]any{"channel": channel, "first": first, "imageSize": imageSize}
	if after != "" {
		vars["after"] = after
	}

	var out struct {
		ProductVariants *struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node domain.ProductVariant `json:"node"`
			} `json:"edges"`
		} `json:"productVariants"`
	}
	if err := c.Do(ctx, fetchProductVariantsQuery, vars, &out); err != nil {
		return nil, err
	}
	page := &VariantsPage{}
	if out.ProductVariants == nil {
		return page, nil
	}
	page.HasNextPage = out.ProductVariants.PageInfo.HasNextPage
	page.EndCursor = out.ProductVariants.PageInfo.EndCursor
	for _, edge := range out.ProductVariants.Edges {
		page.Variants = append(page.Variants, edge.Node)
	}
	return page, nil
}
