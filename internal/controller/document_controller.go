package controller

import (
	"ai-docchat/internal/pkg/serverutils"
	"ai-docchat/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Upload(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type documentController struct {
	documentService service.IDocumentService
}

func NewDocumentController(documentService service.IDocumentService) IDocumentController {
	return &documentController{
		documentService: documentService,
	}
}

func (c *documentController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/documents")
	h.Use(serverutils.ForwardBearer)
	h.Get("", c.List)
	h.Post("upload", c.Upload)
	h.Get(":id", c.Show)
	h.Delete(":id", c.Delete)
}

func (c *documentController) List(ctx *fiber.Ctx) error {
	res, err := c.documentService.List(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list documents", res))
}

func (c *documentController) Show(ctx *fiber.Ctx) error {
	res, err := c.documentService.Show(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show document", res))
}

func (c *documentController) Upload(ctx *fiber.Ctx) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "No file provided")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to read uploaded file")
	}
	defer file.Close()

	res, err := c.documentService.Upload(ctx.UserContext(), fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success upload document", res))
}

func (c *documentController) Delete(ctx *fiber.Ctx) error {
	if err := c.documentService.Delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete document", nil))
}
