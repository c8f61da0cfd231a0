package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"erpcounter/internal/core/apperror"
	corecounter "erpcounter/internal/core/counter"
	domaincounter "erpcounter/internal/domain/counter"
	"erpcounter/internal/infrastructure/http/v1/dto"
)

// HeaderIdempotencyKey makes POST /next replay the number of an earlier request.
const HeaderIdempotencyKey = "X-Idempotency-Key"

var validate = validator.New()

// CounterIssuer issues document numbers. An empty key issues a fresh number.
type CounterIssuer interface {
	GetNextCounterIdempotent(ctx context.Context, key string, req domaincounter.Request) (value string, replayed bool, err error)
}

// CounterHandler handles counter endpoints.
type CounterHandler struct {
	*BaseHandler
	issuer      CounterIssuer
	definitions corecounter.DefinitionStore
	retry       corecounter.RetryPolicy
}

// NewCounterHandler creates a counter handler. Serialization conflicts are
// retried according to retry; every other failure is returned at once.
func NewCounterHandler(issuer CounterIssuer, definitions corecounter.DefinitionStore, retry corecounter.RetryPolicy) *CounterHandler {
	return &CounterHandler{
		BaseHandler: NewBaseHandler(),
		issuer:      issuer,
		definitions: definitions,
		retry:       retry,
	}
}

// Next issues the next number.
// POST /api/v1/counters/:code/next
func (h *CounterHandler) Next(c *gin.Context) {
	code, ok := h.code(c)
	if !ok {
		return
	}

	var body dto.NextCounterRequest
	if !h.BindJSON(c, &body) {
		return
	}

	req := domaincounter.Request{
		SequenceCode: code,
		Site:         body.Site,
		Complement:   body.Complement,
	}
	if body.ReferenceDate != nil {
		req.ReferenceDate = body.ReferenceDate.Time
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if err := validate.Var(key, "omitempty,max=128,printascii"); err != nil {
		var fieldErrs validator.ValidationErrors
		msg := err.Error()
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			msg = validationMessage(fieldErrs[0])
		}
		h.Error(c, apperror.NewValidation("invalid idempotency key").WithDetail("header", HeaderIdempotencyKey).WithDetail("error", msg))
		return
	}
	var replayed bool
	value, err := corecounter.Retry(c.Request.Context(), h.retry, func(ctx context.Context) (string, error) {
		v, r, err := h.issuer.GetNextCounterIdempotent(ctx, key, req)
		replayed = r
		return v, err
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NextCounterResponse{SequenceCode: code, Value: value, Replayed: replayed})
}

// Get returns the counter definition.
// GET /api/v1/counters/:code
func (h *CounterHandler) Get(c *gin.Context) {
	code, ok := h.code(c)
	if !ok {
		return
	}

	def, err := h.definitions.Lookup(c.Request.Context(), code)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDefinition(def))
}

func (h *CounterHandler) code(c *gin.Context) (string, bool) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		h.Error(c, apperror.NewValidation("sequence code is required"))
		return "", false
	}
	return code, true
}
