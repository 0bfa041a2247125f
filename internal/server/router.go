package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/atelierworks/opencall-backend/internal/auth"
	"github.com/atelierworks/opencall-backend/internal/curation"
	"github.com/atelierworks/opencall-backend/internal/reviews"
	"github.com/atelierworks/opencall-backend/internal/submissions"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalContextKey = "opencall_principal"

var (
	errMissingVerifier           = errors.New("identity verifier dependency required")
	errMissingSubmissionsService = errors.New("submissions service dependency required")
	errMissingReviewsService     = errors.New("reviews service dependency required")
	errMissingCurationService    = errors.New("curation service dependency required")
	errInvalidAuthorization      = errors.New("authorization header missing or invalid")
)

// IdentityVerifier resolves a bearer token into the caller principal.
type IdentityVerifier interface {
	VerifyToken(token string) (auth.Principal, error)
}

// Dependencies wires the service layer into the HTTP handler.
type Dependencies struct {
	Verifier    IdentityVerifier
	Submissions *submissions.Service
	Reviews     *reviews.Service
	Curation    *curation.Service
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the open call workflow.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Submissions == nil {
		return nil, errMissingSubmissionsService
	}
	if deps.Reviews == nil {
		return nil, errMissingReviewsService
	}
	if deps.Curation == nil {
		return nil, errMissingCurationService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:    deps.Verifier,
		submissions: deps.Submissions,
		reviews:     deps.Reviews,
		curation:    deps.Curation,
		logger:      logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/calls/:callID/submissions", handler.handleSubmit)
	protected.GET("/calls/:callID/submissions", handler.handleListSubmissions)
	protected.GET("/calls/:callID/ranking", handler.handleRanking)
	protected.POST("/calls/:callID/curation", handler.handleBeginCuration)
	protected.POST("/calls/:callID/finalize", handler.handleFinalize)
	protected.PUT("/submissions/:submissionID/review", handler.handleRecordReview)
	protected.GET("/submissions/:submissionID/score", handler.handleScore)

	return router, nil
}

type httpHandler struct {
	verifier    IdentityVerifier
	submissions *submissions.Service
	reviews     *reviews.Service
	curation    *curation.Service
	logger      *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	principal, err := h.verifier.VerifyToken(token)
	if err != nil {
		h.logger.Warn("token verification failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(principalContextKey, principal)
	c.Next()
}

func (h *httpHandler) principal(c *gin.Context) (auth.Principal, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return auth.Principal{}, false
	}
	principal, ok := value.(auth.Principal)
	return principal, ok
}

type contentPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MediaRefs   []string `json:"media_refs"`
}

type submitRequestPayload struct {
	PaymentConfirmed bool           `json:"payment_confirmed"`
	Content          contentPayload `json:"content"`
}

type submissionPayload struct {
	SubmissionID    string   `json:"submission_id"`
	OpenCallID      string   `json:"open_call_id"`
	ArtistID        string   `json:"artist_id"`
	AttemptIndex    int      `json:"attempt_index"`
	PaymentStatus   string   `json:"payment_status"`
	IsSelected      bool     `json:"is_selected"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	MediaRefs       []string `json:"media_refs"`
	SubmittedAtUnix int64    `json:"submitted_at_s"`
}

func submissionToPayload(entry submissions.Submission) submissionPayload {
	refs, err := entry.MediaRefs()
	if err != nil {
		refs = nil
	}
	return submissionPayload{
		SubmissionID:    entry.SubmissionID,
		OpenCallID:      entry.OpenCallID,
		ArtistID:        entry.ArtistID,
		AttemptIndex:    entry.AttemptIndex,
		PaymentStatus:   entry.PaymentStatus,
		IsSelected:      entry.IsSelected,
		Title:           entry.Title,
		Description:     entry.Description,
		MediaRefs:       refs,
		SubmittedAtUnix: entry.SubmittedAtSeconds,
	}
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	callID, err := submissions.NewCallID(c.Param("callID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	artistID, err := submissions.NewArtistID(principal.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var request submitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	stored, err := h.submissions.Submit(c.Request.Context(), submissions.SubmitRequest{
		CallID:           callID,
		ArtistID:         artistID,
		PaymentConfirmed: request.PaymentConfirmed,
		Content: submissions.Content{
			Title:       request.Content.Title,
			Description: request.Content.Description,
			MediaRefs:   request.Content.MediaRefs,
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submissionToPayload(stored))
}

func (h *httpHandler) handleListSubmissions(c *gin.Context) {
	callID, err := submissions.NewCallID(c.Param("callID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	entries, err := h.submissions.ListForCall(c.Request.Context(), callID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := make([]submissionPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, submissionToPayload(entry))
	}
	c.JSON(http.StatusOK, gin.H{"open_call_id": callID.String(), "submissions": payload})
}

type scoresPayload struct {
	Technical int `json:"technical"`
	Artistic  int `json:"artistic"`
	Theme     int `json:"theme"`
	Overall   int `json:"overall"`
}

type reviewRequestPayload struct {
	Scores       scoresPayload `json:"scores"`
	PublicNotes  string        `json:"public_notes"`
	PrivateNotes string        `json:"private_notes"`
}

func (h *httpHandler) handleRecordReview(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	submissionID, err := reviews.NewSubmissionID(c.Param("submissionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	reviewerID, err := reviews.NewReviewerID(principal.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var request reviewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	stored, err := h.reviews.RecordReview(c.Request.Context(), reviews.ReviewRequest{
		SubmissionID: submissionID,
		ReviewerID:   reviewerID,
		Scores: reviews.ScoreSet{
			Technical: request.Scores.Technical,
			Artistic:  request.Scores.Artistic,
			Theme:     request.Scores.Theme,
			Overall:   request.Scores.Overall,
		},
		PublicNotes:  request.PublicNotes,
		PrivateNotes: request.PrivateNotes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submission_id": stored.SubmissionID,
		"reviewer_id":   stored.ReviewerID,
		"scores": scoresPayload{
			Technical: stored.TechnicalScore,
			Artistic:  stored.ArtisticScore,
			Theme:     stored.ThemeScore,
			Overall:   stored.OverallScore,
		},
		"updated_at_s": stored.UpdatedAtSeconds,
	})
}

type aggregatePayload struct {
	Technical   float64 `json:"technical"`
	Artistic    float64 `json:"artistic"`
	Theme       float64 `json:"theme"`
	Overall     float64 `json:"overall"`
	ReviewCount int     `json:"review_count"`
}

func (h *httpHandler) handleScore(c *gin.Context) {
	submissionID, err := reviews.NewSubmissionID(c.Param("submissionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	aggregate, err := h.reviews.Aggregate(c.Request.Context(), submissionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var payload *aggregatePayload
	if aggregate != nil {
		payload = &aggregatePayload{
			Technical:   aggregate.Technical,
			Artistic:    aggregate.Artistic,
			Theme:       aggregate.Theme,
			Overall:     aggregate.Overall,
			ReviewCount: aggregate.ReviewCount,
		}
	}
	c.JSON(http.StatusOK, gin.H{"submission_id": submissionID.String(), "aggregate": payload})
}

type rankEntryPayload struct {
	SubmissionID    string   `json:"submission_id"`
	Overall         *float64 `json:"overall"`
	ReviewCount     int      `json:"review_count"`
	SubmittedAtUnix int64    `json:"submitted_at_s"`
}

func (h *httpHandler) handleRanking(c *gin.Context) {
	callID, err := submissions.NewCallID(c.Param("callID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	ranking, err := h.reviews.Rank(c.Request.Context(), callID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := make([]rankEntryPayload, 0, len(ranking))
	for _, entry := range ranking {
		row := rankEntryPayload{
			SubmissionID:    entry.SubmissionID,
			SubmittedAtUnix: entry.SubmittedAtSeconds,
		}
		if entry.Aggregate != nil {
			overall := entry.Aggregate.Overall
			row.Overall = &overall
			row.ReviewCount = entry.Aggregate.ReviewCount
		}
		payload = append(payload, row)
	}
	c.JSON(http.StatusOK, gin.H{"open_call_id": callID.String(), "ranking": payload})
}

func (h *httpHandler) handleBeginCuration(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	callID, err := submissions.NewCallID(c.Param("callID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.curation.BeginCuration(c.Request.Context(), callID, principal); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"open_call_id": callID.String(), "status": "under_curation"})
}

type finalizeRequestPayload struct {
	WinnerSubmissionIDs []string `json:"winner_submission_ids"`
	Notes               string   `json:"notes"`
}

func (h *httpHandler) handleFinalize(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	callID, err := submissions.NewCallID(c.Param("callID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	var request finalizeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.curation.Finalize(c.Request.Context(), callID, request.WinnerSubmissionIDs, principal, request.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"open_call_id": result.CallID,
		"winners":      result.Winners,
		"curated_at_s": result.CuratedAtSeconds,
	})
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, submissions.ErrValidation) || errors.Is(err, reviews.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
	case errors.Is(err, submissions.ErrPaymentRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_required"})
	case errors.Is(err, curation.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_authorized"})
	case errors.Is(err, submissions.ErrCallNotFound) || errors.Is(err, reviews.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, submissions.ErrSubmissionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "submission_closed"})
	case errors.Is(err, submissions.ErrQuotaExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "quota_exceeded"})
	case errors.Is(err, curation.ErrAlreadyCurated):
		c.JSON(http.StatusConflict, gin.H{"error": "already_curated"})
	case errors.Is(err, curation.ErrNotCurating):
		c.JSON(http.StatusConflict, gin.H{"error": "not_curating"})
	case errors.Is(err, curation.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent_modification", "retryable": true})
	case errors.Is(err, curation.ErrTooManyWinners):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "too_many_winners"})
	case errors.Is(err, curation.ErrInvalidWinnerSet):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_winner_set"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
