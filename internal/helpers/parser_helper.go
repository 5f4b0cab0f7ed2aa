package helpers

import (
	"fmt"
	"strconv"
)

const maxPageLimit = 100

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// ParsePagination validates page/limit query values. Limit is capped at 100.
func ParsePagination(page, limit string) (pageNum, limitNum int, err error) {
	pageNum, err = StringToInt(page)
	if err != nil || pageNum < 1 {
		return 0, 0, fmt.Errorf("invalid page %q", page)
	}
	limitNum, err = StringToInt(limit)
	if err != nil || limitNum < 1 {
		return 0, 0, fmt.Errorf("invalid limit %q", limit)
	}
	if limitNum > maxPageLimit {
		limitNum = maxPageLimit
	}
	return pageNum, limitNum, nil
}

func TotalPages(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
