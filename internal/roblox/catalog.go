package roblox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ItemDetails is the catalog data used to backfill placeholder items.
type ItemDetails struct {
	Name        string
	Description string
	ImageURL    string
}

type catalogResponse struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
}

type thumbnailResponse struct {
	Data []struct {
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// FetchItemDetails fetches an asset's catalog name, description and
// thumbnail. A failed thumbnail lookup is tolerated; the catalog lookup
// is not.
func (c *Client) FetchItemDetails(ctx context.Context, assetID int64) (*ItemDetails, error) {
	url := fmt.Sprintf("%s/catalog/items/%d/details", c.catalogBase, assetID)

	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog details for %d: %w", assetID, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog API returned status %d for asset %d", res.StatusCode, assetID)
	}

	var body catalogResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode catalog details: %w", err)
	}

	details := &ItemDetails{
		Name:        body.Name,
		Description: body.Description,
	}

	if imageURL, err := c.fetchAssetThumbnail(ctx, assetID); err == nil {
		details.ImageURL = imageURL
	}
	return details, nil
}

func (c *Client) fetchAssetThumbnail(ctx context.Context, assetID int64) (string, error) {
	url := fmt.Sprintf("%s/assets?assetIds=%d&size=420x420&format=Png&isCircular=false",
		c.thumbnailsBase, assetID)

	req, err := c.newRequest(ctx, url)
	if err != nil {
		return "", err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnails API returned status %d", res.StatusCode)
	}

	var body thumbnailResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", nil
	}
	return body.Data[0].ImageURL, nil
}
