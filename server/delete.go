package server

import (
	"fmt"
	"net/http"

	"github.com/cyp0633/caldelete/server/deletion"
	"github.com/cyp0633/caldelete/server/storage"
)

func (h *CaldavHandler) handleDelete(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	h.Logger.Info("delete request received",
		"uri", ctx.Resource.URI,
		"user", ctx.AuthUser,
		"depth", r.Header.Get("Depth"))

	if ctx.Resource.IsRoot() {
		h.sendError(w, fmt.Errorf("%w: cannot delete the service root", storage.ErrPermissionDenied))
		return
	}

	depth, err := storage.ParseDepth(r.Header.Get("Depth"))
	if err != nil {
		h.sendError(w, err)
		return
	}

	target, err := h.Store.Locate(r.Context(), ctx.Resource.URI)
	if err != nil {
		h.sendError(w, err)
		return
	}
	if err := deletion.CheckETag(r.Context(), target, r.Header.Get("If-Match")); err != nil {
		h.sendError(w, err)
		return
	}
	parent, err := h.Store.LocateParent(r.Context(), ctx.Resource.URI)
	if err != nil {
		h.sendError(w, err)
		return
	}

	outcome, err := h.Deleter.Run(r.Context(), &deletion.Request{
		Target:                  target,
		Parent:                  parent,
		Depth:                   depth,
		AllowImplicitScheduling: true,
		ScheduleTagMatch:        r.Header.Get("If-Schedule-Tag-Match"),
	})
	if err != nil {
		h.sendError(w, err)
		return
	}

	if outcome.IsMultiStatus() {
		h.Logger.Warn("delete partially failed",
			"uri", ctx.Resource.URI,
			"failed", len(outcome.Failures))
		h.sendMultiStatus(w, outcome)
		return
	}

	h.Logger.Info("resource deleted successfully",
		"uri", ctx.Resource.URI)
	w.WriteHeader(http.StatusNoContent)
}

// sendMultiStatus writes the failed members of outcome as a 207 body, with
// store URIs turned back into request paths.
func (h *CaldavHandler) sendMultiStatus(w http.ResponseWriter, outcome deletion.Outcome) {
	ms := outcome.Multistatus()
	for i := range ms.Responses {
		href, err := h.URLConverter.EncodePath(Resource{URI: ms.Responses[i].Href})
		if err != nil {
			h.Logger.Error("failed to encode href",
				"uri", ms.Responses[i].Href,
				"error", err)
			continue
		}
		ms.Responses[i].Href = href
	}
	h.writeXML(w, http.StatusMultiStatus, ms.ToXML())
}
