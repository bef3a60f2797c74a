package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/widget"
)

type widgetResponse struct {
	ID            string           `json:"id"`
	Form          widget.FormState `json:"form"`
	Summary       string           `json:"summary"`
	HasSelections bool             `json:"hasSelections"`
	Complete      *bool            `json:"complete,omitempty"`
	Merged        *bool            `json:"merged,omitempty"`
}

func (s *Server) widgetView(id string, form *widget.MultiSelect) widgetResponse {
	return widgetResponse{
		ID:            id,
		Form:          form.State(),
		Summary:       form.Summary(),
		HasSelections: form.HasAnySelections(),
	}
}

func (s *Server) publishWidget(id string, form *widget.MultiSelect) {
	st := form.State()
	s.hub.broadcast(wsMessage{Type: "widget", Widget: id, Form: &st})
}

func (s *Server) lookupWidget(w http.ResponseWriter, r *http.Request) (string, *widget.MultiSelect, bool) {
	id := chi.URLParam(r, "id")
	form, ok := s.widgets.Lookup(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "unknown_widget", "no widget with id "+id, nil)
		return id, nil, false
	}
	return id, form, true
}

func (s *Server) getWidget(w http.ResponseWriter, r *http.Request) {
	id, form, ok := s.lookupWidget(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.widgetView(id, form))
}

// widgetProps takes one frame of agent-streamed props. Incomplete frames are
// merged as partial definitions, which add groups but never evict one;
// invalid frames are refused.
func (s *Server) widgetProps(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	def, err := widget.DecodeMultiSelect(body)
	complete := true
	if err != nil {
		if !errors.Is(err, widget.ErrIncomplete) {
			writeErr(w, http.StatusBadRequest, "invalid_props", err.Error(), nil)
			return
		}
		complete = false
	}

	form := s.widgets.Form(id)
	merged := form.Apply(def)
	if merged {
		s.publishWidget(id, form)
	}
	resp := s.widgetView(id, form)
	resp.Complete = &complete
	resp.Merged = &merged
	writeJSON(w, http.StatusOK, resp)
}

type toggleRequest struct {
	Group  int    `json:"group"`
	Option string `json:"option"`
}

func (s *Server) widgetToggle(w http.ResponseWriter, r *http.Request) {
	id, form, ok := s.lookupWidget(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	form.Toggle(req.Group, req.Option)
	s.publishWidget(id, form)
	writeJSON(w, http.StatusOK, s.widgetView(id, form))
}

type clearRequest struct {
	// Group is cleared alone when set; otherwise every group is.
	Group *int `json:"group"`
}

func (s *Server) widgetClear(w http.ResponseWriter, r *http.Request) {
	id, form, ok := s.lookupWidget(w, r)
	if !ok {
		return
	}
	var req clearRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.Group != nil {
		form.ClearGroup(*req.Group)
	} else {
		form.ClearAll()
	}
	s.publishWidget(id, form)
	writeJSON(w, http.StatusOK, s.widgetView(id, form))
}
