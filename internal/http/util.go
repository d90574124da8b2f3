package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

// parseIntQuery returns the integer value of a query param, or def when it is absent or
// not a number.
func parseIntQuery(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// pageWindow is a clamped limit/offset pair.
type pageWindow struct {
	Limit  int
	Offset int
}

// parsePageWindow reads limit and offset, clamping limit into [1, maxLimit] and offset to >= 0.
func parsePageWindow(r *http.Request, defLimit, maxLimit int) pageWindow {
	maxLimit = max(maxLimit, 1)
	return pageWindow{
		Limit:  min(max(parseIntQuery(r, "limit", defLimit), 1), maxLimit),
		Offset: max(parseIntQuery(r, "offset", 0), 0),
	}
}
