package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
)

// EntitySummary is one entry of the entity listing
type EntitySummary struct {
	Name       string   `json:"name"`
	Modes      []string `json:"modes"`
	Attributes int      `json:"attributes"`
}

// EntityView describes the metadata of one entity in one mode
type EntityView struct {
	Name       string          `json:"name"`
	Mode       string          `json:"mode"`
	Table      string          `json:"table"`
	Tuplizer   string          `json:"tuplizer,omitempty"`
	Identifier *AttributeView  `json:"identifier,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Attributes []AttributeView `json:"attributes"`
}

// AttributeView describes one attribute
type AttributeView struct {
	Ordinal  int    `json:"ordinal"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Column   string `json:"column"`
	Nullable bool   `json:"nullable"`
	Target   string `json:"target,omitempty"`
	Cascade  string `json:"cascade,omitempty"`
	Fetch    string `json:"fetch,omitempty"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewEntityView builds the view of metadata
func NewEntityView(meta *schema.EntityMetadata) EntityView {
	view := EntityView{
		Name:     meta.Name,
		Mode:     meta.Mode.String(),
		Table:    meta.TableName(),
		Tuplizer: meta.Tuplizer,
	}
	if meta.Identifier != nil {
		id := newAttributeView(-1, meta.Identifier)
		view.Identifier = &id
		view.Strategy = meta.Strategy.String()
	}
	for i, attr := range meta.Attributes {
		view.Attributes = append(view.Attributes, newAttributeView(i, attr))
	}
	return view
}

func newAttributeView(ordinal int, attr *schema.AttributeDescriptor) AttributeView {
	view := AttributeView{
		Ordinal:  ordinal,
		Name:     attr.Name,
		Type:     attr.Type.String(),
		Column:   attr.ColumnName(),
		Nullable: attr.Nullable,
	}
	if attr.IsAssociation() {
		view.Target = attr.Target
		view.Cascade = attr.Cascade.String()
		view.Fetch = attr.Fetch.String()
	}
	return view
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	reg := s.catalog.Registry()

	var out []EntitySummary
	for _, name := range reg.Names() {
		summary := EntitySummary{Name: name}
		for _, mode := range []schema.RepresentationMode{schema.TypedObject, schema.DynamicMap} {
			if meta, err := reg.LookupMode(name, mode); err == nil {
				summary.Modes = append(summary.Modes, mode.String())
				summary.Attributes = len(meta.Attributes)
			}
		}
		out = append(out, summary)
	}
	renderJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	meta, err := s.lookup(r)
	if err != nil {
		renderError(w, http.StatusNotFound, err)
		return
	}
	renderJSON(w, http.StatusOK, NewEntityView(meta))
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	meta, err := s.lookup(r)
	if err != nil {
		renderError(w, http.StatusNotFound, err)
		return
	}

	scanner, ok := s.store.(storage.Scanner)
	if !ok {
		renderError(w, http.StatusNotImplemented, errors.New("the store cannot list identifiers"))
		return
	}
	ids, err := scanner.Identifiers(r.Context(), meta)
	if err != nil {
		renderError(w, http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []interface{}{}
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"entity": meta.Name, "ids": ids})
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	meta, err := s.lookup(r)
	if err != nil {
		renderError(w, http.StatusNotFound, err)
		return
	}

	sess := s.session()
	defer sess.Close()

	t, err := sess.Get(r.Context(), meta.Name, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case storage.IsNotFound(err):
			renderError(w, http.StatusNotFound, err)
		case errors.Is(err, schema.ErrInvalidMetadata):
			renderError(w, http.StatusInternalServerError, err)
		default:
			renderError(w, http.StatusBadRequest, err)
		}
		return
	}

	values, err := sess.Values(t)
	if err != nil {
		renderError(w, http.StatusInternalServerError, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"entity": meta.Name,
		"mode":   s.mode.String(),
		"values": values,
	})
}

// lookup resolves the entity in the mode query parameter, or the server's
// mode when absent
func (s *Server) lookup(r *http.Request) (*schema.EntityMetadata, error) {
	mode := s.mode
	if m := r.URL.Query().Get("mode"); m != "" {
		parsed, err := schema.ParseRepresentationMode(m)
		if err != nil {
			return nil, err
		}
		mode = parsed
	}
	return s.catalog.Registry().LookupMode(chi.URLParam(r, "entity"), mode)
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, status int, err error) {
	renderJSON(w, status, &ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}
