package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/beevik/etree"
	"github.com/cyp0633/caldelete/internal/xml"
	"github.com/cyp0633/caldelete/server/deletion"
)

// sendError writes err as a DAV:error body with the status deletion.StatusOf
// picks for it. Server-side failures are not described to the client.
func (h *CaldavHandler) sendError(w http.ResponseWriter, err error) {
	status := deletion.StatusOf(err)

	var delErr *deletion.Error
	var condition *xml.Error
	message := err.Error()
	if errors.As(err, &delErr) {
		condition = delErr.Condition
		message = delErr.Message
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("error response",
			"status", status,
			"error", err)
		message = http.StatusText(status)
	} else {
		h.Logger.Warn("error response",
			"status", status,
			"message", message,
			"error", err)
	}

	var doc *etree.Document
	if condition != nil {
		doc = xml.ErrorDocument(condition)
	} else {
		doc = etree.NewDocument()
		doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
		root := doc.CreateElement(xml.TagError)
		root.Space = xml.Prefix(xml.DAV)
		root.SetText(message)
		xml.AddNamespaces(doc)
	}
	h.writeXML(w, status, doc)
}

func (h *CaldavHandler) writeXML(w http.ResponseWriter, status int, doc *etree.Document) {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		h.Logger.Error("failed to marshal xml response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
