package main

import (
	"strconv"
	"strings"
)

const defaultPage = 1

type paginationView struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalCount  int  `json:"total_count"`
	PageSize    int  `json:"page_size"`
	NextPage    int  `json:"next_page,omitempty"`
	PrevPage    int  `json:"prev_page,omitempty"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

func parsePage(rawPage string) int {
	page, err := strconv.Atoi(strings.TrimSpace(rawPage))
	if err != nil || page < defaultPage {
		return defaultPage
	}
	return page
}

func buildPaginationView(totalCount, currentPage, pageSize int) paginationView {
	if pageSize < 1 {
		pageSize = treesDefaultPageSize
	}
	if currentPage < defaultPage {
		currentPage = defaultPage
	}

	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}

	view := paginationView{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		TotalCount:  totalCount,
		PageSize:    pageSize,
		HasNext:     currentPage < totalPages,
		HasPrev:     currentPage > defaultPage,
	}
	if view.HasNext {
		view.NextPage = currentPage + 1
	}
	if view.HasPrev {
		view.PrevPage = currentPage - 1
	}
	return view
}
