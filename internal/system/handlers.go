package system

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yohannes916/mismartera-sub001/internal/coordinator"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// handleHealth reports process-level health: up, plus the Coordinator's
// run state. Grounded on the teacher's /health handler in
// cmd/scanner/main.go (a status map encoded as JSON, DOWN when a critical
// worker is not running).
func (m *SystemManager) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := m.coord.GetState()
	status := http.StatusOK
	body := map[string]interface{}{
		"status":    "UP",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"session": map[string]interface{}{
			"state":              snap.State,
			"processor_overruns": snap.ProcessorOverruns,
			"merge_queue_depth":  snap.MergeQueueDepth,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (m *SystemManager) handleReady(w http.ResponseWriter, r *http.Request) {
	if m.coord.GetState().State == coordinator.StateRunning.String() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("NOT READY"))
}

func (m *SystemManager) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("LIVE"))
}

// handleState returns the Coordinator's GetState() snapshot encoded as
// protobuf JSON via structpb, rather than encoding/json, so the wire
// shape is shared with any future binary protobuf consumer without
// needing a protoc-generated message for Snapshot itself.
func (m *SystemManager) handleState(w http.ResponseWriter, r *http.Request) {
	snap := m.coord.GetState()
	pb, err := snapshotToStruct(snap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out, err := protojson.Marshal(pb)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

func snapshotToStruct(snap coordinator.Snapshot) (*structpb.Struct, error) {
	symbols := make([]interface{}, len(snap.Symbols))
	for i, s := range snap.Symbols {
		symbols[i] = map[string]interface{}{
			"symbol":                            s.Symbol,
			"meets_session_config_requirements": s.MeetsSessionConfigRequirements,
			"added_by":                          s.AddedBy,
			"auto_provisioned":                  s.AutoProvisioned,
			"upgraded_from_adhoc":                s.UpgradedFromAdhoc,
			"pending":                            s.Pending,
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"state":              snap.State,
		"clock_time":         snap.ClockTime,
		"ready_mode":         snap.ReadyMode,
		"processor_overruns": float64(snap.ProcessorOverruns),
		"merge_queue_depth":  float64(snap.MergeQueueDepth),
		"symbols":            symbols,
	})
}

type startRequest struct {
	ConfigPath string `json:"config_path"`
}

func (m *SystemManager) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConfigPath == "" {
		http.Error(w, "config_path is required", http.StatusBadRequest)
		return
	}
	requestID := uuid.New().String()
	if err := m.coord.Start(context.Background(), req.ConfigPath); err != nil {
		logger.Error("system: session start failed", logger.String("request_id", requestID), logger.ErrorField(err))
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (m *SystemManager) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := m.coord.Stop(); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *SystemManager) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := m.coord.Pause(); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *SystemManager) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := m.coord.Resume(); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// addSymbolRequest describes a mid-session dynamic add (spec.md §4.5).
// Interval/Start/End/DeltaSeconds, if present, build a backtest
// RepositoryBarStream from this SystemManager's BarRepository; omitting
// them registers the symbol with the provisioning protocol alone,
// leaving stream registration to a live adapter calling
// Coordinator.RegisterStream directly.
type addSymbolRequest struct {
	Symbol       string `json:"symbol"`
	Source       string `json:"source"`
	Interval     string `json:"interval,omitempty"`
	DeltaSeconds int    `json:"delta_seconds,omitempty"`
	Start        string `json:"start,omitempty"`
	End          string `json:"end,omitempty"`
}

func (m *SystemManager) handleAddSymbol(w http.ResponseWriter, r *http.Request) {
	var req addSymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	source := models.SymbolSource(req.Source)
	if source == "" {
		source = models.SourceAdhoc
	}

	ctx := r.Context()
	var inputStream coordinator.InputStream
	if req.Interval != "" && req.Start != "" && req.End != "" {
		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			http.Error(w, "invalid start timestamp", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			http.Error(w, "invalid end timestamp", http.StatusBadRequest)
			return
		}
		delta := time.Duration(req.DeltaSeconds) * time.Second
		if delta <= 0 {
			delta = time.Minute
		}
		stream, err := coordinator.NewRepositoryBarStream(ctx, m.repo, req.Symbol, req.Interval, delta, start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		inputStream = stream
	}

	if err := m.coord.AddSymbol(ctx, req.Symbol, source, inputStream); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (m *SystemManager) handleRemoveSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	m.coord.RemoveSymbol(r.Context(), symbol)
	w.WriteHeader(http.StatusOK)
}

type addIndicatorRequest struct {
	Symbol    string                 `json:"symbol"`
	Source    string                 `json:"source"`
	Indicator models.IndicatorConfig `json:"indicator"`
}

func (m *SystemManager) handleAddIndicator(w http.ResponseWriter, r *http.Request) {
	var req addIndicatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	source := models.SymbolSource(req.Source)
	if source == "" {
		source = models.SourceAdhoc
	}
	if err := m.coord.AddIndicator(r.Context(), req.Symbol, req.Indicator, source); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// writeSessionError maps a models.SessionError's Kind to an HTTP status;
// any other error is a 500.
func writeSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var serr *models.SessionError
	if errors.As(err, &serr) {
		switch serr.Kind {
		case models.KindValidation:
			status = http.StatusUnprocessableEntity
		case models.KindConfig:
			status = http.StatusBadRequest
		case models.KindLifecycle:
			status = http.StatusConflict
		case models.KindOverrun:
			status = http.StatusGatewayTimeout
		}
	}
	http.Error(w, err.Error(), status)
}
