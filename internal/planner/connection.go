package planner

import (
	"encoding/json"

	"relquery/internal/apperr"
	"relquery/internal/cursor"
	"relquery/internal/model"
)

// Connection is one page of nodes with the cursors around it.
type Connection[T any] struct {
	Nodes    []T      `json:"nodes"`
	PageInfo PageInfo `json:"page_info"`
}

// PageInfo carries the cursors for the neighboring pages. NextCursor is set
// when rows follow the page; PrevCursor when a cursor was supplied and rows
// precede it.
type PageInfo struct {
	PrevCursor *cursor.Cursor
	NextCursor *cursor.Cursor
}

// MarshalJSON renders both cursors in their wire format.
func (p PageInfo) MarshalJSON() ([]byte, error) {
	prev, next, err := p.Encoded()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		PrevCursor *string `json:"prev_cursor"`
		NextCursor *string `json:"next_cursor"`
	}{prev, next})
}

// Encoded returns the wire form of both cursors; absent cursors are nil.
func (p PageInfo) Encoded() (prev, next *string, err error) {
	encode := func(c *cursor.Cursor) (*string, error) {
		if c == nil {
			return nil, nil
		}
		s, err := cursor.Encode(*c)
		if err != nil {
			return nil, err
		}
		return &s, nil
	}
	if prev, err = encode(p.PrevCursor); err != nil {
		return nil, nil, err
	}
	if next, err = encode(p.NextCursor); err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

// row is a decoded result row with its own cursor and union tag.
type row struct {
	record *model.Record
	cursor cursor.Cursor
	next   bool
}

// paginate splits a fetched window into a page. rows must already be in
// the requested order.
//
// With a cursor, rows tagged for the inverse scan (minus the cursor row,
// which the scan includes) precede the page; the last limit of them form
// the previous page, whose first row is the previous cursor. Without one,
// every row belongs to the page. A page holding more than limit rows
// gives up its last row as the next cursor.
func paginate(rows []row, anchor *cursor.Cursor, limit int) ([]row, PageInfo, error) {
	var info PageInfo
	page := rows
	if anchor != nil {
		var prev []row
		page = make([]row, 0, len(rows))
		for _, r := range rows {
			switch {
			case r.next:
				page = append(page, r)
			case !cursor.Equal(r.cursor, *anchor):
				prev = append(prev, r)
			}
		}
		if len(prev) > limit {
			prev = prev[len(prev)-limit:]
		}
		if len(prev) > 0 {
			c := prev[0].cursor
			info.PrevCursor = &c
		}
	}

	if len(page) > limit {
		page = page[:limit+1]
		last, ok := pop(&page)
		if !ok {
			return nil, PageInfo{}, apperr.Internal("cursor node should not be empty")
		}
		c := last.cursor
		info.NextCursor = &c
	}
	return page, info, nil
}

func pop(rows *[]row) (row, bool) {
	n := len(*rows)
	if n == 0 {
		return row{}, false
	}
	last := (*rows)[n-1]
	*rows = (*rows)[:n-1]
	return last, true
}
