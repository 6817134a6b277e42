package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for a chi route pattern (e.g. GET /v1/admin/alerts/{id}).
// Resource is the first collection segment after the version and optional "admin" prefix, singularized.
// Action is a trailing verb segment when present (claim, resolve, otp), otherwise derived from the method:
// GET on an item is get, GET on a collection is list, POST on a collection is create.
func ParseRoute(method, pattern string) ActionResource {
	var segs []string
	for _, s := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) > 0 && isVersion(segs[0]) {
		segs = segs[1:]
	}
	if len(segs) > 0 && segs[0] == "admin" {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := singular(segs[0])
	rest := segs[1:]
	if len(rest) > 0 {
		last := rest[len(rest)-1]
		if !isParam(last) {
			return ActionResource{Action: strings.ReplaceAll(last, "-", "_"), Resource: resource}
		}
	}
	item := len(rest) > 0
	switch {
	case method == "GET" && item:
		return ActionResource{Action: "get", Resource: resource}
	case method == "GET":
		return ActionResource{Action: "list", Resource: resource}
	case method == "POST":
		return ActionResource{Action: "create", Resource: resource}
	default:
		return ActionResource{Action: strings.ToLower(method), Resource: resource}
	}
}

func isVersion(seg string) bool {
	return len(seg) > 1 && seg[0] == 'v' && seg[1] >= '0' && seg[1] <= '9'
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

func singular(seg string) string {
	seg = strings.ReplaceAll(seg, "-", "_")
	return strings.TrimSuffix(seg, "s")
}
