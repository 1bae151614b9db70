package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"ocorrencias/db"
	"ocorrencias/ml"
	"ocorrencias/monitoring"
)

const (
	MsgInvalidRequest  = "JSON inválido. Esperado: local, hora, dia_semana"
	MsgPredictionError = "Erro ao fazer predição: "
	MsgNoHistory       = "Histórico de treinamento indisponível"
)

// requiredKeys must all be present in a prediction request.
var requiredKeys = []string{"local", "hora", "dia_semana"}

// Store is the persistence the handlers use when a database is configured.
type Store interface {
	SavePrediction(ctx context.Context, p db.PredictionLog) error
	LoadTrainingLog(ctx context.Context, limit int) ([]db.TrainingLog, error)
	CountPredictions(ctx context.Context) (int, error)
}

// Feed receives served predictions for live subscribers.
type Feed interface {
	http.Handler
	Publish(t monitoring.EventType, data any) error
	Clients() int
}

// StalenessReporter tells whether the artifact on disk changed after start-up.
type StalenessReporter interface {
	Stale() bool
}

type HandlerOptions struct {
	Metrics        *monitoring.Metrics
	CacheSize      int
	Store          Store
	LogPredictions bool
	Feed           Feed
	Watcher        StalenessReporter
}

// Handlers serves the API from one loaded predictor. The predictor is
// shared read-only by every request.
type Handlers struct {
	predictor *ml.Predictor
	cache     *lru.Cache[string, *ml.Prediction]
	opts      HandlerOptions
}

func NewHandlers(predictor *ml.Predictor, opts HandlerOptions) (*Handlers, error) {
	if predictor == nil {
		return nil, errors.New("predictor is nil")
	}
	h := &Handlers{predictor: predictor, opts: opts}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, *ml.Prediction](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		h.cache = cache
	}
	return h, nil
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.POST("/api/predizer", h.handlePredict)
	r.GET("/api/health", h.handleHealth)
	r.GET("/api/modelo", h.handleModel)
	r.GET("/api/treinamentos", h.handleTrainingHistory)
	if h.opts.Feed != nil {
		r.GET("/api/ws/predicoes", gin.WrapH(h.opts.Feed))
	}
}

func (h *Handlers) handlePredict(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(body) {
		h.reject(c)
		return
	}
	request := gjson.ParseBytes(body)
	if !request.IsObject() {
		h.reject(c)
		return
	}
	fields := requestFields(request)
	for _, key := range requiredKeys {
		if !fields[key].Exists() {
			h.reject(c)
			return
		}
	}
	local, hora, diaSemana := fields["local"], fields["hora"], fields["dia_semana"]

	key := local.Raw + "\x00" + hora.Raw + "\x00" + diaSemana.Raw
	prediction, cached := h.lookup(key)
	if !cached {
		start := time.Now()
		prediction, err = h.predictor.PredictValues(local.Value(), hora.Value(), diaSemana.Value())
		h.observeInference(time.Since(start))
		if err != nil {
			h.count(monitoring.OutcomeError)
			zap.S().Warnw("prediction failed",
				"request_id", GetRequestID(c.Request.Context()),
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, errorBody(MsgPredictionError+err.Error()))
			return
		}
		if h.cache != nil {
			h.cache.Add(key, prediction)
		}
	}

	h.count(monitoring.OutcomeSuccess)
	if h.opts.Metrics != nil {
		h.opts.Metrics.PredictedClass.WithLabelValues(prediction.Label).Inc()
	}
	h.logPrediction(c.Request.Context(), local, hora, diaSemana, prediction)
	h.publish(c.Request.Context(), local, hora, diaSemana, prediction, cached)
	c.JSON(http.StatusOK, prediction)
}

func (h *Handlers) handleHealth(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.opts.Watcher != nil {
		body["artifact_stale"] = h.opts.Watcher.Stale()
	}
	if h.opts.Feed != nil {
		body["feed_clients"] = h.opts.Feed.Clients()
	}
	if h.opts.Store != nil && h.opts.LogPredictions {
		n, err := h.opts.Store.CountPredictions(c.Request.Context())
		if err != nil {
			zap.S().Warnw("failed to count logged predictions", "error", err)
		} else {
			body["predictions_logged"] = n
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handlers) handleModel(c *gin.Context) {
	c.JSON(http.StatusOK, h.predictor.Info())
}

func (h *Handlers) handleTrainingHistory(c *gin.Context) {
	if h.opts.Store == nil {
		c.JSON(http.StatusNotFound, errorBody(MsgNoHistory))
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}
	logs, err := h.opts.Store.LoadTrainingLog(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"treinamentos": logs})
}

// requestFields collects the top-level members of an object. A key that
// appears more than once keeps its last value.
func requestFields(request gjson.Result) map[string]gjson.Result {
	fields := make(map[string]gjson.Result, len(requiredKeys))
	request.ForEach(func(key, value gjson.Result) bool {
		fields[key.String()] = value
		return true
	})
	return fields
}

func (h *Handlers) reject(c *gin.Context) {
	h.count(monitoring.OutcomeInvalid)
	c.JSON(http.StatusBadRequest, errorBody(MsgInvalidRequest))
}

func (h *Handlers) lookup(key string) (*ml.Prediction, bool) {
	if h.cache == nil {
		return nil, false
	}
	prediction, ok := h.cache.Get(key)
	if h.opts.Metrics != nil {
		result := monitoring.CacheMiss
		if ok {
			result = monitoring.CacheHit
		}
		h.opts.Metrics.CacheLookups.WithLabelValues(result).Inc()
	}
	return prediction, ok
}

func (h *Handlers) count(outcome string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.Predictions.WithLabelValues(outcome).Inc()
	}
}

func (h *Handlers) observeInference(d time.Duration) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.ObserveInference(d)
	}
}

func (h *Handlers) logPrediction(ctx context.Context, local, hora, diaSemana gjson.Result, p *ml.Prediction) {
	if h.opts.Store == nil || !h.opts.LogPredictions {
		return
	}
	entry := db.PredictionLog{
		RequestID:      GetRequestID(ctx),
		Local:          local.String(),
		Hora:           hora.Float(),
		DiaSemana:      diaSemana.Float(),
		PredictedLabel: p.Label,
		Confidence:     confidence(p),
	}
	if err := h.opts.Store.SavePrediction(ctx, entry); err != nil {
		zap.S().Warnw("failed to log prediction", "request_id", entry.RequestID, "error", err)
	}
}

func (h *Handlers) publish(ctx context.Context, local, hora, diaSemana gjson.Result, p *ml.Prediction, cached bool) {
	if h.opts.Feed == nil {
		return
	}
	err := h.opts.Feed.Publish(monitoring.EventPrediction, monitoring.PredictionEvent{
		RequestID:  GetRequestID(ctx),
		Local:      local.String(),
		Hora:       hora.Float(),
		DiaSemana:  diaSemana.Float(),
		Label:      p.Label,
		Confidence: confidence(p),
		Cached:     cached,
	})
	if err != nil {
		zap.S().Warnw("failed to publish prediction", "error", err)
	}
}

// confidence is the probability of the predicted class.
func confidence(p *ml.Prediction) float64 {
	for _, lp := range p.Probabilities {
		if lp.Label == p.Label {
			return lp.Probability
		}
	}
	return 0
}

func errorBody(msg string) gin.H {
	return gin.H{"erro": msg}
}
