// Package httpapi exposes the account-vending JSON API: request intake,
// polling reads, administrative deletes, and claim manifest retrieval. The
// worker owns all status transitions; the API never advances a request itself.
package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxkit/accountvendor/internal/guardrail"
	"github.com/fluxkit/accountvendor/internal/models"
	"github.com/fluxkit/accountvendor/internal/orgs"
	"github.com/fluxkit/accountvendor/internal/store"
)

// Server holds the API's dependencies and provides handlers.
type Server struct {
	store      store.AccountRequestStore
	guardrails guardrail.Client
}

// New creates an API server over the given store and guardrail client.
func New(requestStore store.AccountRequestStore, guardrailClient guardrail.Client) *Server {
	return &Server{
		store:      requestStore,
		guardrails: guardrailClient,
	}
}

// SetupRoutes registers all API routes on the Fiber app.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/healthz", s.Healthz)

	v1 := app.Group("/api/v1")
	v1.Post("/account-requests", s.CreateAccountRequest)
	v1.Get("/account-requests", s.ListAccountRequests)
	v1.Get("/account-requests/:id", s.GetAccountRequest)
	v1.Delete("/account-requests/:id", s.DeleteAccountRequest)
	v1.Get("/account-requests/:id/claim", s.GetClaimManifest)
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type createAccountRequestBody struct {
	RequesterID     string   `json:"requesterId"`
	AccountName     string   `json:"accountName"`
	OwnerEmail      string   `json:"ownerEmail"`
	Purpose         string   `json:"purpose"`
	PrimaryRegion   string   `json:"primaryRegion"`
	BudgetAmount    float64  `json:"budgetAmount"`
	BudgetThreshold int      `json:"budgetThreshold"`
	AllowedRegions  []string `json:"allowedRegions"`
}

// CreateAccountRequest handles POST /api/v1/account-requests.
func (s *Server) CreateAccountRequest(c *fiber.Ctx) error {
	var body createAccountRequestBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if body.RequesterID == "" {
		return respondError(c, fiber.StatusBadRequest, "requesterId is required")
	}
	if err := orgs.ValidateCreateInput(body.AccountName, body.OwnerEmail); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}

	created, err := s.store.Create(c.Context(), &models.AccountRequest{
		RequesterID:     body.RequesterID,
		AccountName:     body.AccountName,
		OwnerEmail:      body.OwnerEmail,
		Purpose:         body.Purpose,
		PrimaryRegion:   body.PrimaryRegion,
		BudgetAmount:    body.BudgetAmount,
		BudgetThreshold: body.BudgetThreshold,
		AllowedRegions:  body.AllowedRegions,
	})
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "failed to create account request")
	}

	log.Info().Str("request_id", created.ID).Str("account_name", created.AccountName).Msg("Account request created")

	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetAccountRequest handles GET /api/v1/account-requests/:id.
func (s *Server) GetAccountRequest(c *fiber.Ctx) error {
	req, err := s.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return respondError(c, fiber.StatusNotFound, "account request not found")
		}
		return respondError(c, fiber.StatusInternalServerError, "failed to load account request")
	}

	return c.JSON(req)
}

// ListAccountRequests handles GET /api/v1/account-requests with an optional
// ?status= filter.
func (s *Server) ListAccountRequests(c *fiber.Ctx) error {
	var (
		requests []*models.AccountRequest
		err      error
	)

	if filter := c.Query("status"); filter != "" {
		status := models.RequestStatus(filter)
		if !status.Valid() {
			return respondError(c, fiber.StatusBadRequest, "unknown status: "+filter)
		}
		requests, err = s.store.ListByStatus(c.Context(), status)
	} else {
		requests, err = s.store.List(c.Context())
	}
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "failed to list account requests")
	}

	return c.JSON(requests)
}

// DeleteAccountRequest handles DELETE /api/v1/account-requests/:id. Only
// terminal requests may be deleted; any associated guardrail claim is cleaned
// up best effort.
func (s *Server) DeleteAccountRequest(c *fiber.Ctx) error {
	id := c.Params("id")

	req, err := s.store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return respondError(c, fiber.StatusNotFound, "account request not found")
		}
		return respondError(c, fiber.StatusInternalServerError, "failed to load account request")
	}

	if !req.Status.IsTerminal() {
		return respondError(c, fiber.StatusConflict, "account request is still being processed")
	}

	if req.GuardrailClaimName != "" {
		if err := s.guardrails.DeleteClaim(c.Context(), req.GuardrailClaimName); err != nil {
			log.Warn().Err(err).Str("request_id", id).Str("claim", req.GuardrailClaimName).Msg("Failed to delete guardrail claim")
		}
	}

	if err := s.store.Delete(c.Context(), id); err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return respondError(c, fiber.StatusNotFound, "account request not found")
		}
		return respondError(c, fiber.StatusInternalServerError, "failed to delete account request")
	}

	log.Info().Str("request_id", id).Msg("Account request deleted")

	return c.SendStatus(fiber.StatusNoContent)
}

// GetClaimManifest handles GET /api/v1/account-requests/:id/claim, returning
// the guardrail claim's declarative manifest as YAML.
func (s *Server) GetClaimManifest(c *fiber.Ctx) error {
	req, err := s.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return respondError(c, fiber.StatusNotFound, "account request not found")
		}
		return respondError(c, fiber.StatusInternalServerError, "failed to load account request")
	}

	if req.GuardrailClaimName == "" {
		return respondError(c, fiber.StatusNotFound, "no guardrail claim for this request")
	}

	claim, err := s.guardrails.GetClaim(c.Context(), req.GuardrailClaimName)
	if err != nil {
		if errors.Is(err, guardrail.ErrClaimNotFound) {
			return respondError(c, fiber.StatusNotFound, "guardrail claim not found")
		}
		return respondError(c, fiber.StatusInternalServerError, "failed to load guardrail claim")
	}

	manifest, err := guardrail.RenderManifest(claim)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "failed to render claim manifest")
	}

	c.Set(fiber.HeaderContentType, "application/yaml")
	return c.Send(manifest)
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
