package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"

	"github.com/elys-network/strategyvault/internal/analyzer"
	"github.com/elys-network/strategyvault/internal/lock"
	"github.com/elys-network/strategyvault/internal/simulations"
	"github.com/elys-network/strategyvault/internal/state"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
	"github.com/elys-network/strategyvault/internal/vault"
)

// operationRequest is the body accepted by every mutating endpoint. Each endpoint reads the fields it needs.
type operationRequest struct {
	Party       string          `json:"party"`
	Amounts     string          `json:"amounts"` // e.g. "1000uusdc,20uatom"
	Shares      string          `json:"shares"`
	Params      json.RawMessage `json:"params"`
	Recipient   string          `json:"recipient"`
	ManualYield *string         `json:"manual_yield"`
	Address     string          `json:"address"`
}

type strategyView struct {
	ID               string                   `json:"id"`
	Venue            string                   `json:"venue"`
	Address          string                   `json:"address"`
	Policy           strategy.Policy          `json:"policy"`
	AssetGroup       types.AssetGroup         `json:"asset_group"`
	TotalSupply      sdkmath.Int              `json:"total_supply"`
	ReferencePrice   sdkmath.LegacyDec        `json:"reference_price"`
	Pending          []types.PendingOperation `json:"pending"`
	Balances         []types.ShareBalance     `json:"balances,omitempty"`
	SwapInstructions []types.SwapInstruction  `json:"swap_instructions,omitempty"`
}

func viewOf(e *vault.Entry, detailed bool) strategyView {
	s := e.Strategy
	st := s.State()
	v := strategyView{
		ID:               s.ID(),
		Venue:            s.Venue(),
		Address:          s.Address(),
		Policy:           s.Policy(),
		AssetGroup:       st.AssetGroup,
		TotalSupply:      st.TotalSupply,
		ReferencePrice:   st.ReferencePrice,
		Pending:          st.Pending,
		SwapInstructions: e.Instructions,
	}
	if detailed {
		v.Balances = st.Balances
	}
	return v
}

func (ws *WebServer) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	entries := ws.manager.List()
	views := make([]strategyView, 0, len(entries))
	for _, e := range entries {
		views = append(views, viewOf(e, false))
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategies": views,
		"count":      len(views),
	})
}

func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	e, ok := ws.entry(w, r)
	if !ok {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, viewOf(e, true))
}

func (ws *WebServer) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	e, ok := ws.entry(w, r)
	if !ok {
		return
	}
	holder := mux.Vars(r)["holder"]
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategy_id":  e.Strategy.ID(),
		"holder":       holder,
		"shares":       e.Strategy.BalanceOf(holder),
		"total_supply": e.Strategy.TotalSupply(),
	})
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	amounts, err := sdktypes.ParseCoinsNormalized(req.Amounts)
	if err != nil || amounts.Empty() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amounts")
		return
	}
	out, err := ws.manager.Deposit(r.Context(), mux.Vars(r)["id"], req.Party, amounts, req.Params)
	ws.writeOperationResult(w, "deposit", out, err)
}

func (ws *WebServer) handleContinueDeposit(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	out, err := ws.manager.ContinueDeposit(r.Context(), mux.Vars(r)["id"], req.Party, req.Params)
	ws.writeOperationResult(w, "continue deposit", out, err)
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	shares, valid := sdkmath.NewIntFromString(req.Shares)
	if !valid {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid shares")
		return
	}
	out, err := ws.manager.Withdraw(r.Context(), mux.Vars(r)["id"], req.Party, shares, req.Params)
	ws.writeOperationResult(w, "withdraw", out, err)
}

func (ws *WebServer) handleContinueWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	out, err := ws.manager.ContinueWithdrawal(r.Context(), mux.Vars(r)["id"], req.Party, req.Params)
	ws.writeOperationResult(w, "continue withdrawal", out, err)
}

func (ws *WebServer) handleCompound(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	out, err := ws.manager.Compound(r.Context(), mux.Vars(r)["id"], req.Party, req.Params)
	ws.writeOperationResult(w, "compound", out, err)
}

func (ws *WebServer) handleRealizeYield(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	var override *sdkmath.Int
	if req.ManualYield != nil {
		y, valid := sdkmath.NewIntFromString(*req.ManualYield)
		if !valid {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid manual yield")
			return
		}
		override = &y
	}
	id := mux.Vars(r)["id"]
	yield, err := ws.manager.RealizeYield(r.Context(), id, override)
	ws.writeOperationResult(w, "realize yield", map[string]interface{}{
		"strategy_id": id,
		"yield":       yield,
		"full":        strategy.YieldFullPercent,
	}, err)
}

func (ws *WebServer) handleUsdWorth(w http.ResponseWriter, r *http.Request) {
	var rates []sdkmath.Int
	if raw := r.URL.Query().Get("rates"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			rate, valid := sdkmath.NewIntFromString(strings.TrimSpace(part))
			if !valid {
				ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid rates")
				return
			}
			rates = append(rates, rate)
		}
	}
	id := mux.Vars(r)["id"]
	worth, err := ws.manager.UsdWorth(r.Context(), id, rates)
	ws.writeOperationResult(w, "usd worth", map[string]interface{}{
		"strategy_id": id,
		"usd_worth":   worth,
	}, err)
}

func (ws *WebServer) handleProtocolRewards(w http.ResponseWriter, r *http.Request) {
	e, ok := ws.entry(w, r)
	if !ok {
		return
	}
	assets, amounts, err := e.Strategy.GetProtocolRewards(r.Context())
	ws.writeOperationResult(w, "protocol rewards", map[string]interface{}{
		"strategy_id": e.Strategy.ID(),
		"assets":      assets,
		"amounts":     amounts,
	}, err)
}

func (ws *WebServer) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	recovered, err := ws.manager.EmergencyWithdraw(r.Context(), id, req.Recipient, req.Params)
	ws.writeOperationResult(w, "emergency withdraw", map[string]interface{}{
		"strategy_id": id,
		"recipient":   req.Recipient,
		"recovered":   recovered,
	}, err)
}

func (ws *WebServer) handleGetYields(w http.ResponseWriter, r *http.Request) {
	e, ok := ws.entry(w, r)
	if !ok {
		return
	}
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Yield history is not available")
		return
	}
	records, err := ws.history.Yields(r.Context(), e.Strategy.ID(), queryLimit(r, 20))
	if err != nil {
		webLogger.Error().Err(err).Str("strategy_id", e.Strategy.ID()).Msg("Failed to get yield history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve yield history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"yields": records,
		"count":  len(records),
	})
}

func (ws *WebServer) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	e, ok := ws.entry(w, r)
	if !ok {
		return
	}
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Yield history is not available")
		return
	}
	records, err := ws.history.Yields(r.Context(), e.Strategy.ID(), 100)
	if err != nil {
		webLogger.Error().Err(err).Str("strategy_id", e.Strategy.ID()).Msg("Failed to get yield history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve yield history")
		return
	}
	perf, err := analyzer.Analyze(e.Strategy.ID(), records)
	if errors.Is(err, analyzer.ErrInsufficientData) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Not enough yield history yet")
		return
	}
	if err != nil {
		webLogger.Error().Err(err).Str("strategy_id", e.Strategy.ID()).Msg("Failed to analyze performance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to analyze performance")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, perf)
}

func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	e, ok := ws.entry(w, r)
	if !ok {
		return
	}
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipts require a database")
		return
	}
	receipts, err := state.GetRecentReceipts(r.Context(), e.Strategy.ID(), queryLimit(r, 20))
	if err != nil {
		webLogger.Error().Err(err).Str("strategy_id", e.Strategy.ID()).Msg("Failed to get receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	e, ok := ws.entry(w, r)
	if !ok {
		return
	}
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Summaries require a database")
		return
	}
	summary, err := state.GetStrategySummary(r.Context(), e.Strategy.ID())
	if err != nil {
		webLogger.Error().Err(err).Str("strategy_id", e.Strategy.ID()).Msg("Failed to get strategy summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategy summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleFaucet(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeRequest(w, r)
	if !ok {
		return
	}
	amounts, err := sdktypes.ParseCoinsNormalized(req.Amounts)
	if err != nil || amounts.Empty() || req.Address == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Address and amounts are required")
		return
	}
	err = ws.faucet.Mint(req.Address, amounts)
	ws.writeOperationResult(w, "faucet", map[string]interface{}{
		"address": req.Address,
		"minted":  amounts,
	}, err)
}

// entry resolves the {id} route variable, writing a 404 when it is unknown.
func (ws *WebServer) entry(w http.ResponseWriter, r *http.Request) (*vault.Entry, bool) {
	e, err := ws.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		ws.writeErrorResponse(w, statusFor(err), err.Error())
		return nil, false
	}
	return e, true
}

func (ws *WebServer) decodeRequest(w http.ResponseWriter, r *http.Request) (operationRequest, bool) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	return req, true
}

func (ws *WebServer) writeOperationResult(w http.ResponseWriter, operation string, result interface{}, err error) {
	if err == nil {
		ws.writeJSONResponse(w, http.StatusOK, result)
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		webLogger.Error().Err(err).Str("operation", operation).Msg("Operation failed")
		ws.writeErrorResponse(w, status, fmt.Sprintf("Failed to %s", operation))
		return
	}
	webLogger.Warn().Err(err).Str("operation", operation).Msg("Operation rejected")
	ws.writeErrorResponse(w, status, err.Error())
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrNoPendingOperation):
		return http.StatusNotFound
	case errors.Is(err, strategy.ErrPendingOperationExists),
		errors.Is(err, vault.ErrUnbackedShares),
		errors.Is(err, lock.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, strategy.ErrUnauthorized),
		errors.Is(err, vault.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, strategy.ErrSlippageExceeded),
		errors.Is(err, strategy.ErrManualYieldTooBig),
		errors.Is(err, strategy.ErrManualYieldTooSmall):
		return http.StatusUnprocessableEntity
	case errors.Is(err, strategy.ErrInvalidAmount),
		errors.Is(err, strategy.ErrInvalidParams),
		errors.Is(err, strategy.ErrInvalidParty),
		errors.Is(err, strategy.ErrInvalidAssetGroup),
		errors.Is(err, strategy.ErrInsufficientShares),
		errors.Is(err, strategy.ErrMissingSwapInstruction),
		errors.Is(err, vault.ErrMissingRates),
		errors.Is(err, simulations.ErrInsufficientFunds),
		errors.Is(err, simulations.ErrInvalidCoins),
		errors.Is(err, simulations.ErrEmptyAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
