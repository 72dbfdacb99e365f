package controller

import (
	"ai-docchat/internal/dto"
	"ai-docchat/internal/mapper"
	"ai-docchat/internal/pkg/serverutils"
	"ai-docchat/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Open(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Ask(ctx *fiber.Ctx) error
	Close(ctx *fiber.Ctx) error
}

type chatController struct {
	driver service.ISessionDriver
	tokens *serverutils.ViewTokens
	mapper *mapper.ChatMapper
}

func NewChatController(driver service.ISessionDriver, tokens *serverutils.ViewTokens) IChatController {
	return &chatController{
		driver: driver,
		tokens: tokens,
		mapper: mapper.NewChatMapper(),
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/sessions")
	h.Use(serverutils.ForwardBearer)
	h.Post("", c.Open)
	h.Get(":viewId", c.Show)
	h.Post(":viewId/ask", c.Ask)
	h.Delete(":viewId", c.Close)
}

func (c *chatController) Open(ctx *fiber.Ctx) error {
	var req dto.OpenSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	view, err := c.driver.Open(ctx.UserContext(), req.DocumentID.String(), service.OpenOptions{Fresh: req.Fresh})
	if err != nil {
		return err
	}

	token, err := c.tokens.Issue(view.ID)
	if err != nil {
		return err
	}

	snap := view.Session.Snapshot()
	res := dto.OpenSessionResponse{
		ViewId:    view.ID,
		ViewToken: token,
		Document:  c.mapper.DocumentToResponse(&view.Document),
		Chunks:    c.mapper.ChunksToResponse(view.Chunks, snap.Highlights),
		Session:   c.mapper.SnapshotToResponse(view.ID, snap),
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success open chat session", res))
}

func (c *chatController) Show(ctx *fiber.Ctx) error {
	view, err := c.driver.Get(ctx.Params("viewId"))
	if err != nil {
		return err
	}

	res := c.mapper.SnapshotToResponse(view.ID, view.Session.Snapshot())
	return ctx.JSON(serverutils.SuccessResponse("Success show chat session", res))
}

// Ask blocks until the question is resolved and returns the resulting session state.
func (c *chatController) Ask(ctx *fiber.Ctx) error {
	var req dto.AskQuestionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	view, err := c.driver.Get(ctx.Params("viewId"))
	if err != nil {
		return err
	}

	snap, err := c.driver.Ask(ctx.UserContext(), view, req.Question)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success ask question", c.mapper.SnapshotToResponse(view.ID, snap)))
}

func (c *chatController) Close(ctx *fiber.Ctx) error {
	if err := c.driver.Close(ctx.UserContext(), ctx.Params("viewId")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success close chat session", nil))
}
