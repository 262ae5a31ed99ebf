package api

import (
	"context"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/program"
)

// ─── Singletons ─────────────────────────────────────────────────────────────

func (s *Server) handleInitVault(w http.ResponseWriter, r *http.Request) {
	vault, err := s.prog.InitVault(r.Context(), signerFrom(r))
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vault)
}

type fundRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) handleFundVault(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.FundVault(r.Context(), signerFrom(r), req.Amount); err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"funded": req.Amount})
}

func (s *Server) handleInitRegistry(w http.ResponseWriter, r *http.Request) {
	if err := s.prog.InitRegistry(r.Context(), signerFrom(r)); err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

// ─── Clients and Endpoints ──────────────────────────────────────────────────

func (s *Server) handleEnsureClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.prog.EnsureClient(r.Context(), signerFrom(r))
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleClientReport(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.RecordClientReport(r.Context(), signerFrom(r), owner); err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	node, err := s.prog.CreateEndpoint(r.Context(), signerFrom(r))
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleCloseEndpoint(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.CloseEndpoint(r.Context(), signerFrom(r), owner); err != nil {
		writeProgramError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Providers ──────────────────────────────────────────────────────────────

type providerRequest struct {
	NetworkAddress domain.IPv4 `json:"network_address"`
	ProxyPort      uint16      `json:"proxy_port"`
	ClientPort     uint16      `json:"client_port"`
	BandwidthLimit uint64      `json:"bandwidth_limit"`
}

func (req providerRequest) params() program.ProviderParams {
	return program.ProviderParams{
		NetworkAddress: req.NetworkAddress,
		ProxyPort:      req.ProxyPort,
		ClientPort:     req.ClientPort,
		BandwidthLimit: req.BandwidthLimit,
	}
}

func (s *Server) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	node, err := s.prog.RegisterProvider(r.Context(), signerFrom(r), req.params())
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	var req providerRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.UpdateProvider(r.Context(), signerFrom(r), owner, req.params()); err != nil {
		writeProgramError(w, err)
		return
	}
	s.writeProvider(w, r, owner)
}

type providerReportRequest struct {
	BandwidthDelta  uint64 `json:"bandwidth_delta"`
	ReputationDelta uint64 `json:"reputation_delta"`
}

func (s *Server) handleProviderReport(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	var req providerReportRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.UpdateProviderReport(r.Context(), signerFrom(r), owner, req.BandwidthDelta, req.ReputationDelta); err != nil {
		writeProgramError(w, err)
		return
	}
	s.writeProvider(w, r, owner)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetProviderActive(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	var req activeRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.SetProviderActive(r.Context(), signerFrom(r), owner, req.Active); err != nil {
		writeProgramError(w, err)
		return
	}
	s.writeProvider(w, r, owner)
}

func (s *Server) handleClaimBonus(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	paid, err := s.prog.ClaimBonus(r.Context(), signerFrom(r), owner)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"paid": paid})
}

func (s *Server) handleCloseProvider(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.CloseProvider(r.Context(), signerFrom(r), owner); err != nil {
		writeProgramError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeProvider(w http.ResponseWriter, r *http.Request, owner solana.PublicKey) {
	node, err := s.prog.Provider(r.Context(), owner)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

type createTaskRequest struct {
	Endpoint solana.PublicKey `json:"endpoint"`
	URL      string           `json:"url"`
	Filter   string           `json:"filter"`
	Label    string           `json:"label"`
	Format   string           `json:"format"`
	Reward   uint64           `json:"reward"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	task, err := s.prog.CreateTask(r.Context(), signerFrom(r), req.Endpoint, domain.TaskSpec{
		URL:    req.URL,
		Filter: req.Filter,
		Label:  req.Label,
		Format: req.Format,
		Reward: req.Reward,
	})
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

type assignRequest struct {
	Provider solana.PublicKey  `json:"provider"`
	Endpoint *solana.PublicKey `json:"endpoint,omitempty"`
}

// handleAssignTask takes the endpoint path when the body names an endpoint
// and the direct self-claim path otherwise.
func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	ref, err := taskRefParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	var req assignRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	if req.Endpoint != nil {
		err = s.prog.AssignTaskViaEndpoint(r.Context(), signerFrom(r), ref, *req.Endpoint, req.Provider)
	} else {
		err = s.prog.AssignTask(r.Context(), signerFrom(r), ref, req.Provider)
	}
	if err != nil {
		writeProgramError(w, err)
		return
	}
	s.writeTask(w, r, ref)
}

type completeRequest struct {
	Provider solana.PublicKey `json:"provider"`
	program.CompleteParams
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	ref, err := taskRefParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	var req completeRequest
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.CompleteTask(r.Context(), signerFrom(r), ref, req.Provider, req.CompleteParams); err != nil {
		writeProgramError(w, err)
		return
	}
	s.writeTask(w, r, ref)
}

func (s *Server) handleCloseTask(w http.ResponseWriter, r *http.Request) {
	ref, err := taskRefParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	if err := s.prog.CloseTask(r.Context(), signerFrom(r), ref); err != nil {
		writeProgramError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type datasetRequest struct {
	Client solana.PublicKey `json:"client"`
}

func (s *Server) handlePreviewDataset(w http.ResponseWriter, r *http.Request) {
	s.handleDataset(w, r, s.prog.PreviewDataset)
}

func (s *Server) handleDownloadDataset(w http.ResponseWriter, r *http.Request) {
	s.handleDataset(w, r, s.prog.DownloadDataset)
}

type datasetFunc func(ctx context.Context, signer solana.PublicKey, ref program.TaskRef, client solana.PublicKey) (*program.DatasetAccess, error)

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request, fn datasetFunc) {
	ref, err := taskRefParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	req := datasetRequest{Client: signerFrom(r)}
	if err := decodeBody(r, &req); err != nil {
		writeProgramError(w, err)
		return
	}
	access, err := fn(r.Context(), signerFrom(r), ref, req.Client)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func (s *Server) writeTask(w http.ResponseWriter, r *http.Request, ref program.TaskRef) {
	task, err := s.prog.Task(r.Context(), ref)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
