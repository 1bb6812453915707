package models

type PagedResponse[T any] struct {
	Total         int `json:"total"`
	Data          []T `json:"data"`
	Page          int `json:"page"`
	Limit         int `json:"limit"`
	NumberOfPages int `json:"number_of_pages"`
}

// Paginate slices data into zero-based pages. A non-positive limit returns
// everything as page 0.
func Paginate[T any](data []T, limit, page int) PagedResponse[T] {
	total := len(data)
	if limit <= 0 {
		limit = total
		page = 0
	}
	if page < 0 {
		page = 0
	}

	pages := 0
	if limit > 0 {
		pages = total / limit
		if total%limit != 0 {
			pages++
		}
	}

	resp := PagedResponse[T]{
		Total:         total,
		Data:          []T{},
		Page:          page,
		Limit:         limit,
		NumberOfPages: pages,
	}

	// page < pages keeps page*limit below total, so nothing overflows.
	if page >= pages {
		return resp
	}
	start := page * limit
	end := total
	if limit < total-start {
		end = start + limit
	}
	resp.Data = append(resp.Data, data[start:end]...)
	return resp
}
