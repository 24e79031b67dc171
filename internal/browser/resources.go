package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose resource type is listed. The
// storefront scripts and XHR always pass.
func blockResources(page *rod.Page, types []string) {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blocked, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func shouldBlock(blocked map[string]bool, typ proto.NetworkResourceType) bool {
	switch typ {
	case proto.NetworkResourceTypeScript, proto.NetworkResourceTypeXHR,
		proto.NetworkResourceTypeFetch, proto.NetworkResourceTypeDocument:
		return false
	case proto.NetworkResourceTypeImage:
		return blocked["images"]
	case proto.NetworkResourceTypeFont:
		return blocked["fonts"]
	case proto.NetworkResourceTypeMedia:
		return blocked["media"]
	case proto.NetworkResourceTypeStylesheet:
		return blocked["stylesheets"]
	}
	return blocked[strings.ToLower(string(typ))]
}
