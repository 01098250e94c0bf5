package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll follows pagination cursors until the database query is
// exhausted. Filter and sorts from q are carried onto every page request.
func QueryAll(ctx context.Context, c Client, dbID string, q *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if q != nil {
			req.Filter = q.Filter
			req.Sorts = q.Sorts
			req.PageSize = q.PageSize
		}

		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// FindByText returns the pages whose rich-text property equals value.
func FindByText(ctx context.Context, c Client, dbID, property, value string) ([]notionapi.Page, error) {
	q := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{
				Equals: value,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, q)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find %s = %q", property, value)
	}
	return pages, nil
}
