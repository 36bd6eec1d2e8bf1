package httpapi

import "strconv"

func parseQueryInt64(raw string) int64 {
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

func parseQueryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseQueryBool(raw string) bool {
	v, _ := strconv.ParseBool(raw)
	return v
}
