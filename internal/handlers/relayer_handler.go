package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go-relayer/internal/models"
	"go-relayer/internal/repository"
	"go-relayer/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChainSigner reports the backend signing identity per chain. Implemented by
// clients.ChainClient.
type ChainSigner interface {
	HasChain(chainID uint64) bool
	SigningAddress(chainID uint64) (common.Address, error)
}

// RelayerHandler read access to relayer configurations plus admin CRUD
type RelayerHandler struct {
	repo   repository.RelayerRepository
	signer ChainSigner
}

// NewRelayerHandler creates a new RelayerHandler
func NewRelayerHandler(repo repository.RelayerRepository, signer ChainSigner) *RelayerHandler {
	return &RelayerHandler{repo: repo, signer: signer}
}

// RelayerRequest admin create/update payload
type RelayerRequest struct {
	Name              string   `json:"name" binding:"required"`
	ChainID           uint64   `json:"chain_id" binding:"required"`
	BackendWallet     string   `json:"backend_wallet" binding:"required"`
	AllowedContracts  []string `json:"allowed_contracts"`
	AllowedForwarders []string `json:"allowed_forwarders"`
}

// Get handles GET /api/v1/relayers/:relayerId
func (h *RelayerHandler) Get(c *gin.Context) {
	id := c.Param("relayerId")

	relayer, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "relayer not found", "id": id})
			return
		}
		logrus.WithError(err).WithField("id", id).Error("Failed to load relayer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load relayer"})
		return
	}

	c.JSON(http.StatusOK, relayerResponse(relayer))
}

// List handles GET /api/v1/relayers
func (h *RelayerHandler) List(c *gin.Context) {
	relayers, err := h.repo.List(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to list relayers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list relayers"})
		return
	}

	responses := make([]gin.H, 0, len(relayers))
	for _, r := range relayers {
		responses = append(responses, relayerResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"relayers": responses, "total": len(responses)})
}

// Create handles POST /api/v1/admin/relayers
func (h *RelayerHandler) Create(c *gin.Context) {
	var req RelayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !utils.IsEvmAddress(req.BackendWallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backend_wallet is not a valid address"})
		return
	}
	if !h.checkBackendWallet(c, req.ChainID, req.BackendWallet) {
		return
	}

	relayer := &models.Relayer{
		ID:             uuid.New().String(),
		Name:           req.Name,
		ChainID:        req.ChainID,
		BackendWallet:  utils.NormalizeAddress(req.BackendWallet),
		AllowedTargets: joinAddressList(req.AllowedContracts),
		AllowedRelays:  joinAddressList(req.AllowedForwarders),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := h.repo.Create(c.Request.Context(), relayer); err != nil {
		logrus.WithError(err).Error("Failed to create relayer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create relayer"})
		return
	}

	c.JSON(http.StatusCreated, relayerResponse(relayer))
}

// Update handles PUT /api/v1/admin/relayers/:relayerId
func (h *RelayerHandler) Update(c *gin.Context) {
	id := c.Param("relayerId")

	relayer, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "relayer not found", "id": id})
			return
		}
		logrus.WithError(err).WithField("id", id).Error("Failed to load relayer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load relayer"})
		return
	}

	var req RelayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !utils.IsEvmAddress(req.BackendWallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backend_wallet is not a valid address"})
		return
	}
	if !h.checkBackendWallet(c, req.ChainID, req.BackendWallet) {
		return
	}

	relayer.Name = req.Name
	relayer.ChainID = req.ChainID
	relayer.BackendWallet = utils.NormalizeAddress(req.BackendWallet)
	relayer.AllowedTargets = joinAddressList(req.AllowedContracts)
	relayer.AllowedRelays = joinAddressList(req.AllowedForwarders)
	relayer.UpdatedAt = time.Now()

	if err := h.repo.Update(c.Request.Context(), relayer); err != nil {
		logrus.WithError(err).WithField("id", id).Error("Failed to update relayer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update relayer"})
		return
	}

	c.JSON(http.StatusOK, relayerResponse(relayer))
}

// checkBackendWallet rejects a wallet that differs from the key the chain
// client actually signs with. Submission lanes are keyed by the configured
// wallet, so a mismatched wallet opens a second lane against the same
// on-chain account and the two lanes race for its nonces.
func (h *RelayerHandler) checkBackendWallet(c *gin.Context, chainID uint64, wallet string) bool {
	if h.signer == nil || !h.signer.HasChain(chainID) {
		// chain not configured; nothing will submit for it either way
		return true
	}
	signing, err := h.signer.SigningAddress(chainID)
	if err != nil {
		return true
	}
	if !utils.SameAddress(wallet, signing.Hex()) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "backend_wallet does not match the signing address for this chain",
			"chain_id":        chainID,
			"signing_address": utils.NormalizeAddress(signing.Hex()),
		})
		return false
	}
	return true
}

func relayerResponse(r *models.Relayer) gin.H {
	return gin.H{
		"id":                 r.ID,
		"name":               r.Name,
		"chain_id":           r.ChainID,
		"backend_wallet":     r.BackendWallet,
		"allowed_contracts":  r.AllowedContracts(),
		"allowed_forwarders": r.AllowedForwarders(),
		"created_at":         r.CreatedAt,
		"updated_at":         r.UpdatedAt,
	}
}

func joinAddressList(addresses []string) string {
	normalized := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			normalized = append(normalized, utils.NormalizeAddress(trimmed))
		}
	}
	return strings.Join(normalized, ",")
}
