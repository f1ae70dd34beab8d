package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/0xmhha/contractforge/internal/errors"
	"github.com/0xmhha/contractforge/pkg/deploy"
	"github.com/0xmhha/contractforge/pkg/generator"
	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/payments"
	"github.com/0xmhha/contractforge/pkg/storage"
)

type generateRequest struct {
	Goal    string `json:"goal"`
	Details string `json:"details"`
}

type generateResponse struct {
	Success bool `json:"success"`
	generator.Draft
	Source string `json:"source"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	outcome, err := s.services.Generator.Generate(r.Context(), generator.Request{Goal: req.Goal, Details: req.Details})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	draft := outcome.Result()
	if draft.PaymentFunctions == nil {
		draft.PaymentFunctions = []models.PaymentFunction{}
	}
	writeJSON(w, http.StatusOK, generateResponse{Success: true, Draft: draft, Source: outcome.Source()})
}

type deployRequest struct {
	ContractCode     string                   `json:"contractCode"`
	ContractName     string                   `json:"contractName"`
	Goal             string                   `json:"goal"`
	PaymentFunctions []models.PaymentFunction `json:"paymentFunctions"`
	SignerIndex      *int                     `json:"signerIndex"`
}

type deployResponse struct {
	Success         bool             `json:"success"`
	Contract        *models.Contract `json:"contract"`
	TransactionHash string           `json:"transactionHash"`
	GasUsed         uint64           `json:"gasUsed"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	signer := s.config.DefaultSignerIndex
	if req.SignerIndex != nil {
		signer = *req.SignerIndex
	}

	res, err := s.services.Deployer.Deploy(r.Context(), deploy.Request{
		ContractCode:     req.ContractCode,
		ContractName:     req.ContractName,
		Goal:             req.Goal,
		PaymentFunctions: req.PaymentFunctions,
		SignerIndex:      signer,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deployResponse{
		Success:         true,
		Contract:        res.Contract,
		TransactionHash: res.TransactionHash,
		GasUsed:         res.GasUsed,
	})
}

// handleListContracts serves ?q= search and ?order=desc
func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.services.Store.List(r.Context())
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.EPersistence, "Failed to list contracts", err))
		return
	}

	q := r.URL.Query()
	if term := strings.TrimSpace(q.Get("q")); term != "" {
		contracts = models.Filter(contracts, term)
	}
	if strings.EqualFold(q.Get("order"), "desc") {
		contracts = models.NewestFirst(contracts)
	}
	if contracts == nil {
		contracts = []*models.Contract{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"contracts": contracts})
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	c, err := s.services.Store.FindByAddress(r.Context(), address)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, r, apperrors.New(apperrors.ENotFound, "Contract not found"))
		return
	}
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.EPersistence, "Failed to read contract", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"contract": c})
}

type paymentRequest struct {
	ContractAddress string        `json:"contractAddress"`
	FunctionName    string        `json:"functionName"`
	TransactionHash string        `json:"transactionHash"`
	Amount          models.Amount `json:"amount"`
	Payer           string        `json:"payer"`
}

type paymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Applied bool   `json:"applied"`
	Outcome string `json:"outcome"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := s.services.Payments.Record(r.Context(), payments.Request{
		ContractAddress: req.ContractAddress,
		FunctionName:    req.FunctionName,
		TransactionHash: req.TransactionHash,
		Amount:          string(req.Amount),
		Payer:           req.Payer,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		Success: true,
		Message: receipt.Message,
		Applied: receipt.Applied,
		Outcome: receipt.Outcome.String(),
	})
}

func (s *Server) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	summary, err := s.services.Payments.Outstanding(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.services.Store.List(r.Context())
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.EPersistence, "Failed to list contracts", err))
		return
	}
	writeJSON(w, http.StatusOK, models.Summarize(contracts))
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.services.Deployer.Accounts(r.Context())
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.EChain, "Failed to list accounts", err))
		return
	}
	if accounts == nil {
		accounts = []deploy.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}
