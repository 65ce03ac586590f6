package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/registry"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/go-chi/chi/v5"
)

// responsibleInput is the body accepted by create and update. Id, ativo and
// dataCadastro are managed by the registry.
type responsibleInput struct {
	Nome         string `json:"nome"`
	CPF          string `json:"cpf"`
	NIP          string `json:"nip"`
	Perfil       string `json:"perfil"`
	TipoPerfilOM string `json:"tipoPerfilOm"`
	CodPapem     string `json:"codPapem"`
}

func (in responsibleInput) toResponsible() types.Responsible {
	return types.Responsible{
		Nome:         in.Nome,
		CPF:          in.CPF,
		NIP:          in.NIP,
		Perfil:       in.Perfil,
		TipoPerfilOM: in.TipoPerfilOM,
		CodPapem:     in.CodPapem,
	}
}

func (s *Server) handleListResponsibles(w http.ResponseWriter, r *http.Request) {
	response := &APIResponse[[]types.Responsible]{
		Success: true,
		Data:    s.registry.ListActive(),
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

func (s *Server) handleGetResponsible(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &APIResponse[types.Responsible]{Success: true, Data: rec})
}

func (s *Server) handleCreateResponsible(w http.ResponseWriter, r *http.Request) {
	var input responsibleInput
	if err := readJSON(w, r, &input); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	rec, err := s.registry.Add(input.toResponsible())
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &APIResponse[types.Responsible]{
		Success: true,
		Data:    rec,
		Message: "Responsible created",
	})
}

func (s *Server) handleUpdateResponsible(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var input responsibleInput
	if err := readJSON(w, r, &input); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	rec, err := s.registry.Update(id, input.toResponsible())
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &APIResponse[types.Responsible]{
		Success: true,
		Data:    rec,
		Message: "Responsible updated",
	})
}

func (s *Server) handleDeleteResponsible(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := s.registry.Remove(id); err != nil {
		writeRegistryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeRegistryError maps registry sentinels to status codes.
func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDuplicateCPF):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrInvalidCPF), errors.Is(err, registry.ErrInvalidResponsible):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
