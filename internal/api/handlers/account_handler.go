package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type AccountHandler struct {
	a service.AccountService
	m service.ManagerService
}

func NewAccountHandler(a service.AccountService, m service.ManagerService) *AccountHandler {
	return &AccountHandler{a: a, m: m}
}

func (h *AccountHandler) Create(c *fiber.Ctx) error {
	var req transfer.AccountRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	account := &models.Account{
		Platform:          models.Platform(req.Platform),
		DisplayName:       req.DisplayName,
		PlatformAccountID: req.PlatformAccountID,
		Credentials:       req.Credentials,
	}
	if _, err := h.a.Create(c.Context(), account, req.SkipTest); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *AccountHandler) List(c *fiber.Ctx) error {
	accounts, err := h.a.List(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return c.JSON(accounts)
}

func (h *AccountHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return writeError(c, err)
	}
	account, err := h.a.Get(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(account)
}

func (h *AccountHandler) Update(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req transfer.AccountUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	account, err := h.a.Update(c.Context(), id, service.AccountUpdate{
		DisplayName: req.DisplayName,
		Credentials: req.Credentials,
		Status:      req.Status,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(account)
}

func (h *AccountHandler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.a.Delete(c.Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TestCredentials checks credentials against the provider without storing them.
func (h *AccountHandler) TestCredentials(c *fiber.Ctx) error {
	var req transfer.CredentialTestRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := h.m.TestCredentials(c.Context(), models.Platform(req.Platform), req.Credentials); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"valid": true})
}

// Active lists the platforms whose current account authenticates.
func (h *AccountHandler) Active(c *fiber.Ctx) error {
	platforms, err := h.m.ActivePlatforms(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"platforms": platforms})
}
