package apis

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/gateway"
	"github.com/boardsite/truthstate/history"
	"github.com/boardsite/truthstate/locks"
	"github.com/boardsite/truthstate/session"
	"github.com/boardsite/truthstate/state"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// APIRestTruthStateHandler REST handler for the truth-state APIs
type APIRestTruthStateHandler struct {
	goutils.RestAPIHandler
	coordinator session.Coordinator
	engines     map[string]session.TransitionFunc
	store       state.Store
	archive     history.Archive
	wsAdapter   *gateway.WebsocketAdapter
	validate    *validator.Validate
}

// GetAPIRestTruthStateHandler define APIRestTruthStateHandler
func GetAPIRestTruthStateHandler(
	coordinator session.Coordinator,
	engines map[string]session.TransitionFunc,
	store state.Store,
	archive history.Archive,
	wsAdapter *gateway.WebsocketAdapter,
	httpConfig *common.HTTPConfig,
) (APIRestTruthStateHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "truth-state",
	}
	return APIRestTruthStateHandler{
		RestAPIHandler: goutils.RestAPIHandler{
			Component: goutils.Component{
				LogTags: logTags,
				LogTagModifiers: []goutils.LogMetadataModifier{
					goutils.ModifyLogMetadataByRestRequestParam,
				},
			},
			CallRequestIDHeaderField: &httpConfig.Logging.RequestIDHeader,
			DoNotLogHeaders: func() map[string]bool {
				result := map[string]bool{}
				for _, v := range httpConfig.Logging.DoNotLogHeaders {
					result[v] = true
				}
				return result
			}(),
		},
		coordinator: coordinator,
		engines:     engines,
		store:       store,
		archive:     archive,
		wsAdapter:   wsAdapter,
		validate:    validator.New(),
	}, nil
}

// mutationStatusCode map a mutation pipeline failure to a HTTP status code
func mutationStatusCode(err error) int {
	var rejected session.RejectedError
	switch {
	case errors.As(err, &rejected):
		return http.StatusConflict
	case errors.Is(err, locks.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, state.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// =======================================================================
// Session mutation

// APIRestRespMutation response body for one applied mutation
type APIRestRespMutation struct {
	goutils.RestAPIBaseResponse
	// State is the session snapshot as written
	State state.Snapshot `json:"state"`
	// Sequence is the channel sequence of the broadcast event
	Sequence uint64 `json:"sequence"`
}

// -----------------------------------------------------------------------

// ApplyAction godoc
// @Summary Apply an action to a session
// @Description Run one action through the channel's game engine under the session lock.
// The new state is stored and broadcast to the channel's live connections before the
// call returns.
// @tags TruthState
// @Accept json
// @Produce json
// @Param Truthstate-Request-ID header string false "User provided request ID to match against logs"
// @Param channel path string true "Game channel name"
// @Param sessionID path string true "Session ID"
// @Param action body session.Action true "Action to apply"
// @Success 200 {object} APIRestRespMutation "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 409 {object} goutils.RestAPIBaseResponse "action rejected"
// @Failure 503 {object} goutils.RestAPIBaseResponse "retry later"
// @Header 200,400,404,409,503 {string} Truthstate-Request-ID "Request ID to match against logs"
// @Router /v1/game/{channel}/session/{sessionID}/action [post]
func (h APIRestTruthStateHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	vars := mux.Vars(r)
	channel, ok := vars["channel"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}
	engine, ok := h.engines[channel]
	if !ok {
		msg := fmt.Sprintf("Unknown game channel %s", channel)
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusNotFound
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, msg)
		return
	}
	sessionID, ok := vars["sessionID"]
	if !ok {
		msg := "No session ID provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	var action session.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&action); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	result, err := h.coordinator.Mutate(r.Context(), channel, sessionID, action, engine)
	if err != nil {
		msg := fmt.Sprintf("Unable to apply action %s to session %s", action.Name, sessionID)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mutationStatusCode(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespMutation{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		State:    result.Snapshot,
		Sequence: result.Sequence,
	}
}

// ApplyActionHandler Wrapper around ApplyAction
func (h APIRestTruthStateHandler) ApplyActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ApplyAction(w, r)
	}
}

// =======================================================================
// Session reads and teardown

// APIRestRespSessionState response body for one session snapshot
type APIRestRespSessionState struct {
	goutils.RestAPIBaseResponse
	// State is the session's current snapshot
	State state.Snapshot `json:"state"`
}

// -----------------------------------------------------------------------

// GetSession godoc
// @Summary Fetch a session's current state
// @Description Read the session's current snapshot without taking the session lock
// @tags TruthState
// @Produce json
// @Param Truthstate-Request-ID header string false "User provided request ID to match against logs"
// @Param channel path string true "Game channel name"
// @Param sessionID path string true "Session ID"
// @Success 200 {object} APIRestRespSessionState "success"
// @Failure 404 {object} goutils.RestAPIBaseResponse "no such session"
// @Failure 503 {object} goutils.RestAPIBaseResponse "retry later"
// @Header 200,404,503 {string} Truthstate-Request-ID "Request ID to match against logs"
// @Router /v1/game/{channel}/session/{sessionID} [get]
func (h APIRestTruthStateHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	vars := mux.Vars(r)
	channel, ok := vars["channel"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}
	if _, ok := h.engines[channel]; !ok {
		msg := fmt.Sprintf("Unknown game channel %s", channel)
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusNotFound
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, msg)
		return
	}
	sessionID, ok := vars["sessionID"]
	if !ok {
		msg := "No session ID provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	entry, err := h.coordinator.Fetch(r.Context(), sessionID)
	if err != nil {
		msg := fmt.Sprintf("Unable to read session %s", sessionID)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mutationStatusCode(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if entry == nil {
		msg := fmt.Sprintf("No state for session %s", sessionID)
		log.WithFields(localLogTags).Info(msg)
		respCode = http.StatusNotFound
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, msg)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespSessionState{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		State: *entry,
	}
}

// GetSessionHandler Wrapper around GetSession
func (h APIRestTruthStateHandler) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.GetSession(w, r)
	}
}

// -----------------------------------------------------------------------

// DeleteSession godoc
// @Summary Tear a session down
// @Description Remove the session's state and broadcast a terminal event to the channel
// @tags TruthState
// @Produce json
// @Param Truthstate-Request-ID header string false "User provided request ID to match against logs"
// @Param channel path string true "Game channel name"
// @Param sessionID path string true "Session ID"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 503 {object} goutils.RestAPIBaseResponse "retry later"
// @Header 200,404,503 {string} Truthstate-Request-ID "Request ID to match against logs"
// @Router /v1/game/{channel}/session/{sessionID} [delete]
func (h APIRestTruthStateHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	vars := mux.Vars(r)
	channel, ok := vars["channel"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}
	if _, ok := h.engines[channel]; !ok {
		msg := fmt.Sprintf("Unknown game channel %s", channel)
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusNotFound
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, msg)
		return
	}
	sessionID, ok := vars["sessionID"]
	if !ok {
		msg := "No session ID provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	if err := h.coordinator.Teardown(r.Context(), channel, sessionID); err != nil {
		msg := fmt.Sprintf("Unable to tear down session %s", sessionID)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mutationStatusCode(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// DeleteSessionHandler Wrapper around DeleteSession
func (h APIRestTruthStateHandler) DeleteSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.DeleteSession(w, r)
	}
}

// =======================================================================
// Live event stream

// LiveStream godoc
// @Summary Attach a live event stream
// @Description Upgrade to a websocket and stream every event broadcast on the channel from
// this point onward. The stream closes on client disconnect or server shutdown.
// @tags TruthState
// @Produce json
// @Param channel path string true "Game channel name"
// @Success 101 {string} string "switching protocols"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/game/{channel}/live [get]
func (h APIRestTruthStateHandler) LiveStream(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())

	vars := mux.Vars(r)
	channel, ok := vars["channel"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(localLogTags).Errorf(msg)
		if err := h.WriteRESTResponse(
			w,
			http.StatusBadRequest,
			h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg),
			nil,
		); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
		return
	}
	if _, ok := h.engines[channel]; !ok {
		msg := fmt.Sprintf("Unknown game channel %s", channel)
		log.WithFields(localLogTags).Errorf(msg)
		if err := h.WriteRESTResponse(
			w,
			http.StatusNotFound,
			h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, msg),
			nil,
		); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
		return
	}

	// The adapter owns the connection from here. No REST response once the
	// upgrade succeeded.
	_ = h.wsAdapter.ServeWebsocket(w, r, channel)
}

// LiveStreamHandler Wrapper around LiveStream
func (h APIRestTruthStateHandler) LiveStreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.LiveStream(w, r)
	}
}

// =======================================================================
// Finished-game archive

// APIRestReqRecordResults request body for recording a finished game
type APIRestReqRecordResults struct {
	// Results are the per-player outcomes of the finished game
	Results []APIRestReqPlayerResult `json:"results" validate:"required,min=1,dive"`
}

// APIRestReqPlayerResult one player's outcome in a finished game
type APIRestReqPlayerResult struct {
	// Player is the player's display name
	Player string `json:"player" validate:"required"`
	// Score is the player's final score
	Score int `json:"score"`
	// Won marks the game's winner(s)
	Won bool `json:"won"`
}

// APIRestRespLeaderboard response body for one game's leaderboard
type APIRestRespLeaderboard struct {
	goutils.RestAPIBaseResponse
	// Leaderboard is the ranked player list
	Leaderboard []history.Entry `json:"leaderboard"`
}

// -----------------------------------------------------------------------

// RecordResults godoc
// @Summary Record a finished game
// @Description Store the per-player outcomes of a finished game in the archive
// @tags TruthState
// @Accept json
// @Produce json
// @Param Truthstate-Request-ID header string false "User provided request ID to match against logs"
// @Param channel path string true "Game channel name"
// @Param sessionID path string true "Session ID"
// @Param results body APIRestReqRecordResults true "Per-player outcomes"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,404,500 {string} Truthstate-Request-ID "Request ID to match against logs"
// @Router /v1/game/{channel}/session/{sessionID}/results [post]
func (h APIRestTruthStateHandler) RecordResults(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	vars := mux.Vars(r)
	channel, ok := vars["channel"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}
	if _, ok := h.engines[channel]; !ok {
		msg := fmt.Sprintf("Unknown game channel %s", channel)
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusNotFound
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, msg)
		return
	}
	sessionID, ok := vars["sessionID"]
	if !ok {
		msg := "No session ID provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	var request APIRestReqRecordResults
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&request); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	results := make([]history.Result, 0, len(request.Results))
	for _, entry := range request.Results {
		results = append(results, history.Result{
			Game:    channel,
			Session: sessionID,
			Player:  entry.Player,
			Score:   entry.Score,
			Won:     entry.Won,
		})
	}
	if err := h.archive.RecordResults(r.Context(), results); err != nil {
		msg := fmt.Sprintf("Unable to record results for session %s", sessionID)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// RecordResultsHandler Wrapper around RecordResults
func (h APIRestTruthStateHandler) RecordResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.RecordResults(w, r)
	}
}

// -----------------------------------------------------------------------

// Leaderboard godoc
// @Summary Fetch a game's leaderboard
// @Description Rank the game's recorded players by wins, then best score
// @tags TruthState
// @Produce json
// @Param Truthstate-Request-ID header string false "User provided request ID to match against logs"
// @Param channel path string true "Game channel name"
// @Param limit query integer false "Max number of entries (DEFAULT: 10)"
// @Success 200 {object} APIRestRespLeaderboard "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,404,500 {string} Truthstate-Request-ID "Request ID to match against logs"
// @Router /v1/game/{channel}/leaderboard [get]
func (h APIRestTruthStateHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	vars := mux.Vars(r)
	channel, ok := vars["channel"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}
	if _, ok := h.engines[channel]; !ok {
		msg := fmt.Sprintf("Unknown game channel %s", channel)
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusNotFound
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, msg)
		return
	}

	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			msg := fmt.Sprintf("Invalid limit %s", limitStr)
			log.WithFields(localLogTags).Errorf(msg)
			respCode = http.StatusBadRequest
			respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
			return
		}
		limit = parsed
	}

	entries, err := h.archive.Leaderboard(r.Context(), channel, limit)
	if err != nil {
		msg := fmt.Sprintf("Unable to read leaderboard for %s", channel)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespLeaderboard{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		Leaderboard: entries,
	}
}

// LeaderboardHandler Wrapper around Leaderboard
func (h APIRestTruthStateHandler) LeaderboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Leaderboard(w, r)
	}
}

// =======================================================================
// Health checks

// Alive godoc
// @Summary For truth-state REST API liveness check
// @Description Will return success to indicate the REST API module is live
// @tags TruthState
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /alive [get]
func (h APIRestTruthStateHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler Wrapper around Alive
func (h APIRestTruthStateHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For truth-state REST API readiness check
// @Description Will return success if the state store backend is reachable
// @tags TruthState
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 503 {object} goutils.RestAPIBaseResponse "error"
// @Router /ready [get]
func (h APIRestTruthStateHandler) Ready(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	if err := h.store.Ready(r.Context()); err != nil {
		msg := "not ready"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusServiceUnavailable
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusServiceUnavailable, msg, err.Error())
		return
	}
	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// ReadyHandler Wrapper around Ready
func (h APIRestTruthStateHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}
