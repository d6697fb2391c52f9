package roblox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// UserInfo is a holder's resolved profile data.
type UserInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

// FetchUserInfo fetches a user's profile from the users API.
func (c *Client) FetchUserInfo(ctx context.Context, robloxUserID int64) (*UserInfo, error) {
	url := fmt.Sprintf("%s/%d", c.usersBase, robloxUserID)

	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user info for %d: %w", robloxUserID, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("users API returned status %d for user %d", res.StatusCode, robloxUserID)
	}

	var info UserInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return &info, nil
}

type headshotResponse struct {
	Data []struct {
		TargetID int64  `json:"targetId"`
		State    string `json:"state"`
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// FetchHeadshotURL fetches a user's avatar headshot URL from the
// thumbnails API. Returns an empty string when no completed thumbnail
// exists.
func (c *Client) FetchHeadshotURL(ctx context.Context, robloxUserID int64) (string, error) {
	url := fmt.Sprintf("%s/users/avatar-headshot?userIds=%d&size=150x150&format=Png&isCircular=false",
		c.thumbnailsBase, robloxUserID)

	req, err := c.newRequest(ctx, url)
	if err != nil {
		return "", err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch headshot for %d: %w", robloxUserID, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnails API returned status %d for user %d", res.StatusCode, robloxUserID)
	}

	var body headshotResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode headshot response: %w", err)
	}

	for _, thumb := range body.Data {
		if thumb.TargetID == robloxUserID && thumb.ImageURL != "" {
			return thumb.ImageURL, nil
		}
	}
	return "", nil
}
