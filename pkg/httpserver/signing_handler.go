package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/mselser95/typed-signer/internal/encoder"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/internal/validator"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// SigningAPI is the part of the engine exposed over HTTP. Nothing here signs.
type SigningAPI interface {
	Schemas() []*schema.Definition
	PreviewTypedData(name string, domain schema.Domain, msg schema.Message) (*encoder.Encoded, error)
	ValidateBatch(ctx context.Context, aggregator common.Address, candidates []validator.Candidate) (*validator.Outcome, error)
}

// SigningHandler handles the typed-data API.
type SigningHandler struct {
	api    SigningAPI
	logger *zap.Logger
}

// NewSigningHandler creates a new signing handler.
func NewSigningHandler(api SigningAPI, logger *zap.Logger) *SigningHandler {
	return &SigningHandler{api: api, logger: logger}
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// DomainParams are the request-time domain values. Numbers are strings.
type DomainParams struct {
	Name              string `json:"name,omitempty"`
	Version           string `json:"version,omitempty"`
	ChainID           string `json:"chainId,omitempty"`
	VerifyingContract string `json:"verifyingContract,omitempty"`
	Salt              string `json:"salt,omitempty"`
}

// TypedDataRequest is the body of POST /api/typed-data/{schema}.
type TypedDataRequest struct {
	Domain  DomainParams           `json:"domain"`
	Message map[string]interface{} `json:"message"`
}

// TypedDataResponse carries the exact structure a wallet must sign.
type TypedDataResponse struct {
	Schema          string             `json:"schema"`
	TypedData       apitypes.TypedData `json:"typedData"`
	StructHash      string             `json:"structHash"`
	DomainSeparator string             `json:"domainSeparator"`
	Digest          string             `json:"digest"`
}

// BatchValidateRequest is the body of POST /api/batch/validate.
type BatchValidateRequest struct {
	Aggregator string                `json:"aggregator"`
	Candidates []validator.Candidate `json:"candidates"`
}

// BatchValidateResponse reports what a batch signing would accept.
type BatchValidateResponse struct {
	Verdicts []validator.EntryVerdict `json:"verdicts"`
	Accepted []validator.Entry        `json:"accepted"`
	Summary  string                   `json:"summary"`
}

// HandleSchemas handles GET /api/schemas.
func (h *SigningHandler) HandleSchemas(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.api.Schemas())
}

// HandleTypedData handles POST /api/typed-data/{schema}.
func (h *SigningHandler) HandleTypedData(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "schema")

	var req TypedDataRequest
	err := decodeBody(w, r, &req)
	if err != nil {
		h.writeError(w, err.Error(), "", http.StatusBadRequest)
		return
	}

	domain, err := req.Domain.toDomain()
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	encoded, err := h.api.PreviewTypedData(name, domain, schema.Message(req.Message))
	if err != nil {
		h.logger.Debug("typed-data-request-rejected", zap.String("schema", name), zap.Error(err))
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, TypedDataResponse{
		Schema:          name,
		TypedData:       encoder.WireTypedData(encoded.TypedData),
		StructHash:      encoded.StructHash.Hex(),
		DomainSeparator: encoded.DomainSeparator.Hex(),
		Digest:          encoded.Digest.Hex(),
	})
}

// HandleValidateBatch handles POST /api/batch/validate. A batch with no
// eligible entries is still a 200; the verdicts say why.
func (h *SigningHandler) HandleValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchValidateRequest
	err := decodeBody(w, r, &req)
	if err != nil {
		h.writeError(w, err.Error(), "", http.StatusBadRequest)
		return
	}

	aggregator, err := validator.NormalizeAddress(req.Aggregator)
	if err != nil {
		h.writeFailure(w, types.NewError("validate", "aggregator", err))
		return
	}

	outcome, err := h.api.ValidateBatch(r.Context(), aggregator, req.Candidates)
	if err != nil && !(errors.Is(err, types.ErrNoEligibleEntries) && outcome != nil) {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, BatchValidateResponse{
		Verdicts: outcome.Verdicts,
		Accepted: outcome.Accepted,
		Summary:  outcome.Summary(),
	})
}

func (p DomainParams) toDomain() (schema.Domain, error) {
	d := schema.Domain{Name: p.Name, Version: p.Version}

	if p.ChainID != "" {
		id, ok := math.ParseBig256(p.ChainID)
		if !ok {
			return d, types.NewError("domain", "chainId", fmt.Errorf("%w: %q is not an integer", types.ErrFieldTypeMismatch, p.ChainID))
		}
		d.ChainID = id
	}

	if p.VerifyingContract != "" {
		addr, err := validator.NormalizeAddress(p.VerifyingContract)
		if err != nil {
			return d, types.NewError("domain", "verifyingContract", err)
		}
		d.VerifyingContract = addr
	}

	if p.Salt != "" {
		raw, err := hexutil.Decode(p.Salt)
		if err != nil || len(raw) != common.HashLength {
			return d, types.NewError("domain", "salt", fmt.Errorf("%w: want 32-byte hex", types.ErrFieldTypeMismatch))
		}
		salt := common.BytesToHash(raw)
		d.Salt = &salt
	}

	return d, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, types.ErrUnknownSchema) {
		return http.StatusNotFound
	}
	switch types.KindOf(err) {
	case types.KindInput:
		return http.StatusBadRequest
	case types.KindExternal:
		return http.StatusBadGateway
	case types.KindProtocol:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *SigningHandler) writeFailure(w http.ResponseWriter, err error) {
	h.writeError(w, err.Error(), string(types.KindOf(err)), statusFor(err))
}

func (h *SigningHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *SigningHandler) writeError(w http.ResponseWriter, message string, kind string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message, Kind: kind})
}
