package api

import (
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	vault, err := s.prog.Vault(r.Context())
	if err != nil {
		writeProgramError(w, err)
		return
	}
	custody, err := s.prog.CustodyBalance(r.Context())
	if err != nil {
		writeProgramError(w, err)
		return
	}
	free, err := s.prog.FreeCustody(r.Context())
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vault":           vault,
		"custody_balance": custody,
		"free_custody":    free,
	})
}

func (s *Server) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := s.prog.Registry(r.Context())
	if err != nil {
		writeProgramError(w, err)
		return
	}
	nodes := reg.Nodes()
	if nodes == nil {
		nodes = []solana.PublicKey{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capacity": reg.Capacity(),
		"count":    reg.Len(),
		"nodes":    nodes,
	})
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	client, err := s.prog.Client(r.Context(), owner)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	node, err := s.prog.Endpoint(r.Context(), owner)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	s.writeProvider(w, r, owner)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	ref, err := taskRefParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	s.writeTask(w, r, ref)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	tasks, err := s.prog.TasksByOwner(r.Context(), owner)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	acct, err := s.prog.Addresses().TokenAccount(owner)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	tokens, err := s.tokens.Balance(r.Context(), domain.AssetToken, acct.Address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lamports, err := s.tokens.Balance(r.Context(), domain.AssetLamports, owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":         owner,
		"token_account": acct.Address,
		"scrape":        tokens,
		"lamports":      lamports,
	})
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	var signer solana.PublicKey
	if v := r.URL.Query().Get("signer"); v != "" {
		pk, err := domain.ParsePublicKey(v)
		if err != nil {
			writeProgramError(w, err)
			return
		}
		signer = pk
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	receipts, err := s.db.Receipts(r.Context(), signer, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": receipts})
}

// handleListProviders lists registry entries that resolve to an active
// provider record.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.prog.ActiveProviders(r.Context())
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	ranked, err := s.prog.Rankings(r.Context(), limit)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rankings": ranked})
}
