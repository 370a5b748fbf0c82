package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/api"
	"github.com/BaSui01/roundtable/types"
)

// PersonaLister 只读的 persona 目录
type PersonaLister interface {
	Persona(id string) (types.Persona, bool)
	List() []types.Persona
}

// PersonaHandler 暴露 persona 目录
type PersonaHandler struct {
	catalog PersonaLister
	logger  *zap.Logger
}

// NewPersonaHandler 创建 persona 处理器
func NewPersonaHandler(catalog PersonaLister, logger *zap.Logger) *PersonaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonaHandler{
		catalog: catalog,
		logger:  logger.With(zap.String("handler", "persona")),
	}
}

// Register 在 mux 上注册 persona 路由
func (h *PersonaHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/personas", h.HandleList)
	mux.HandleFunc("GET /v1/personas/{id}", h.HandleGet)
}

// HandleList 列出全部 persona，按 ID 排序
func (h *PersonaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	personas := h.catalog.List()
	out := make([]api.PersonaResponse, 0, len(personas))
	for _, p := range personas {
		out = append(out, api.NewPersonaResponse(p))
	}
	WriteSuccess(w, r, api.PersonaListResponse{Personas: out, Total: len(out)})
}

// HandleGet 读取单个 persona
func (h *PersonaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.catalog.Persona(r.PathValue("id"))
	if !ok {
		WriteError(w, r, types.NewError(types.ErrNotFound, "persona not found"), h.logger)
		return
	}
	WriteSuccess(w, r, api.NewPersonaResponse(p))
}
