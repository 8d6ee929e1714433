package talk

import (
	"context"
	"time"

	"talksync/pkg/errors"
)

// FetchMessages returns the timeline of memberID published at or after
// max(Baseline, since), in API order. A null or missing message list
// yields an empty slice.
func (c *Client) FetchMessages(ctx context.Context, accessToken, memberID string, since time.Time) ([]Message, error) {
	url := c.group.TimelineURL(memberID, since)

	c.logger.DebugWithFields("fetching timeline", map[string]interface{}{
		"member_id":    memberID,
		"created_from": CreatedFrom(since),
	})

	var resp TimelineResponse
	if err := c.GetJSON(ctx, url, accessToken, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeFetch, err, "timeline request failed")
	}

	if resp.Messages == nil {
		return []Message{}, nil
	}
	return resp.Messages, nil
}
