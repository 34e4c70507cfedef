// internal/service/points/interfaces/http_handler.go
package interfaces

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"easypoints/internal/pkg/logger"
	"easypoints/internal/pkg/metrics"
	"easypoints/internal/pkg/session"
	"easypoints/internal/service/points/application"
	"easypoints/internal/service/points/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// PointsHandler 封装了 points 服务的 HTTP 处理器
type PointsHandler struct {
	service *application.PointsService
	hub     *Hub
	metrics *metrics.Metrics
}

// NewPointsHandler hub / m 可以为 nil，此时不注册 websocket / metrics 路由。
func NewPointsHandler(service *application.PointsService, hub *Hub, m *metrics.Metrics) *PointsHandler {
	return &PointsHandler{service: service, hub: hub, metrics: m}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PointsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	mux.Handle("POST /v1/sessions", h.instrument("create_session", h.handleCreateSession))
	mux.Handle("GET /v1/sessions/{id}", h.instrument("snapshot", h.handleSnapshot))
	mux.Handle("POST /v1/sessions/{id}/refresh", h.instrument("refresh", h.handleRefresh))
	mux.Handle("POST /v1/sessions/{id}/point-values", h.instrument("point_values", h.handlePointValues))
	mux.Handle("POST /v1/sessions/{id}/total-points", h.instrument("total_points", h.handleTotalPoints))
	mux.Handle("POST /v1/sessions/{id}/redeem", h.instrument("redeem", h.handleRedeem))
	mux.Handle("POST /v1/sessions/{id}/reset", h.instrument("reset", h.handleReset))
	mux.Handle("POST /v1/sessions/{id}/discount-view", h.instrument("discount_view", h.handleDiscountView))
	mux.Handle("GET /v1/sessions/{id}/tiers", h.instrument("tiers", h.handleTiers))
	mux.Handle("POST /v1/sessions/{id}/exchange/add", h.instrument("exchange_add", h.handleExchangeAdd))
	mux.Handle("POST /v1/sessions/{id}/exchange/remove", h.instrument("exchange_remove", h.handleExchangeRemove))
	mux.Handle("POST /v1/customers/{customerId}/note", h.instrument("note", h.handleNote))

	if h.hub != nil {
		mux.Handle("GET /ws/sessions/{id}", h.instrument("ws", h.handleWebsocket))
	}
}

func (h *PointsHandler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.CreateSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *PointsHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PointsHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req application.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.service.Refresh(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PointsHandler) handlePointValues(w http.ResponseWriter, r *http.Request) {
	h.handleDocument(w, r, h.service.PointValues)
}

func (h *PointsHandler) handleTotalPoints(w http.ResponseWriter, r *http.Request) {
	h.handleDocument(w, r, h.service.TotalPoints)
}

// documentPayload 接受领域文档 document，或者主题上报的元素列表 nodes。
type documentPayload struct {
	application.DocumentRequest
	Nodes []DOMNode `json:"nodes,omitempty"`
}

type documentResult struct {
	Document domain.Document `json:"document"`
	Patches  []DOMPatch      `json:"patches,omitempty"`
}

type documentFunc func(ctx context.Context, sessionID string, req *application.DocumentRequest) (*application.DocumentResponse, error)

// handleDocument 以 nodes 提交时，响应里额外带上逐个元素的写回内容。
func (h *PointsHandler) handleDocument(w http.ResponseWriter, r *http.Request, run documentFunc) {
	var payload documentPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if len(payload.Nodes) > 0 {
		doc, err := DocumentFromDOM(payload.Nodes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload.Document = doc
	}

	resp, err := run(r.Context(), r.PathValue("id"), &payload.DocumentRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result := documentResult{Document: resp.Document}
	if len(payload.Nodes) > 0 {
		if result.Patches, err = PatchesFromDocument(resp.Document); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PointsHandler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req application.RedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.service.Redeem(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PointsHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req application.ResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.service.Reset(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PointsHandler) handleDiscountView(w http.ResponseWriter, r *http.Request) {
	var req application.DiscountViewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.service.DiscountView(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleTiers 是 GET 请求，店铺上下文以 JSON 放在 context 查询参数里。
func (h *PointsHandler) handleTiers(w http.ResponseWriter, r *http.Request) {
	var req application.TiersRequest
	q := r.URL.Query()
	if raw := q.Get("context"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Context); err != nil {
			http.Error(w, "Invalid context parameter", http.StatusBadRequest)
			return
		}
	}
	if raw := q.Get("subtotal"); raw != "" {
		subtotal, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid subtotal parameter", http.StatusBadRequest)
			return
		}
		req.Subtotal = &subtotal
	}

	resp, err := h.service.Tiers(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PointsHandler) handleExchangeAdd(w http.ResponseWriter, r *http.Request) {
	var req application.ExchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.service.ExchangeAdd(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PointsHandler) handleExchangeRemove(w http.ResponseWriter, r *http.Request) {
	var req application.ExchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.service.ExchangeRemove(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PointsHandler) handleNote(w http.ResponseWriter, r *http.Request) {
	var req application.NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.service.UpdateNote(r.Context(), r.PathValue("customerId"), &req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// instrument 从请求头中恢复 trace 上下文，注入带路由信息的 logger，并记录请求耗时。
func (h *PointsHandler) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = logger.WithContext(ctx, map[string]string{"route": route, "method": r.Method})

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r.WithContext(ctx))

		if h.metrics != nil {
			h.metrics.HTTPDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
		}
	})
}

// statusCode 把应用层错误映射为 HTTP 状态码
func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingLoyaltyData), errors.Is(err, domain.ErrMissingTierData):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	l := logger.Ctx(r.Context())
	if code >= http.StatusInternalServerError {
		l.Error().Err(err).Int("status", code).Msg("🛑 Request failed")
	} else {
		l.Warn().Err(err).Int("status", code).Msg("⚠️ Request rejected")
	}
	http.Error(w, err.Error(), code)
}

// decodeBody 解析 JSON 请求体，空请求体按零值处理。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	http.Error(w, "Invalid request body", http.StatusBadRequest)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack websocket 升级需要底层连接
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
